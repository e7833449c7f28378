/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package sink

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// Prometheus exports the latest record of each stream as gauges.
type Prometheus struct {
	registry *prometheus.Registry
	power    *prometheus.GaugeVec
	energy   *prometheus.GaugeVec
	total    *prometheus.GaugeVec
	derived  *prometheus.GaugeVec
	degraded *prometheus.CounterVec
	server   *http.Server
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermeter_power_watts",
			Help: "Average power over the last sampling interval",
		}, []string{"stream"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermeter_interval_energy_joules",
			Help: "Energy consumed during the last sampling interval",
		}, []string{"stream"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermeter_energy_joules_total",
			Help: "Energy consumed since sampling started",
		}, []string{"stream"}),
		derived: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermeter_derived_value",
			Help: "User defined metric evaluated over the last interval",
		}, []string{"stream", "name"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powermeter_degraded_intervals_total",
			Help: "Intervals whose reading was incomplete or failed",
		}, []string{"stream", "status"}),
	}
	p.registry.MustRegister(p.power, p.energy, p.total, p.derived, p.degraded)
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics in the background.
func (p *Prometheus) Serve(addr string) (err error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("prometheus endpoint stopped: %v", err)
		}
	}()
	klog.Infof("Prometheus metrics available at http://%s/metrics", listener.Addr())
	return
}

func (p *Prometheus) Write(rec Record) error {
	if rec.Status != StatusOK {
		p.degraded.WithLabelValues(rec.Stream, string(rec.Status)).Inc()
	}
	p.total.WithLabelValues(rec.Stream).Set(rec.TotalEnergy)
	if rec.Status == StatusOK || rec.Status == StatusDegraded {
		p.power.WithLabelValues(rec.Stream).Set(rec.Power)
		p.energy.WithLabelValues(rec.Stream).Set(rec.Energy)
	}
	for _, v := range rec.Derived {
		p.derived.WithLabelValues(rec.Stream, v.Name).Set(v.Value)
	}
	return nil
}

func (p *Prometheus) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
