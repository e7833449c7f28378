/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/intel/powermeter/internal/rapl"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewRecordStatus(t *testing.T) {
	ok := rapl.IntervalResult{Power: 10, Energy: 10, TotalEnergy: 20, Elapsed: time.Second}
	tests := []struct {
		name   string
		result rapl.IntervalResult
		err    error
		want   Status
		nan    bool
	}{
		{"ok", ok, nil, StatusOK, false},
		{"degraded", rapl.IntervalResult{Power: 1, Energy: 1, MissingNodes: []int{1}, Elapsed: time.Second}, nil, StatusDegraded, false},
		{"invalid", rapl.IntervalResult{TotalEnergy: 3}, fmt.Errorf("x: %w", rapl.ErrNonPositiveElapsedTime), StatusInvalidInterval, true},
		{"error", ok, errors.New("read failed"), StatusError, true},
	}
	for _, tt := range tests {
		rec := NewRecord("cpu", ts, tt.result, tt.err)
		if rec.Status != tt.want {
			t.Errorf("%s: status %s, want %s", tt.name, rec.Status, tt.want)
		}
		if tt.nan != math.IsNaN(rec.Power) {
			t.Errorf("%s: power %g", tt.name, rec.Power)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "power,energy,total_energy,elapsed,status\n" {
		t.Fatalf("header %q", got)
	}
	recs := []Record{
		NewRecord("cpu", ts, rapl.IntervalResult{Power: 42.5, Energy: 4.25, TotalEnergy: 4.25, Elapsed: 100 * time.Millisecond}, nil),
		NewRecord("cpu", ts, rapl.IntervalResult{TotalEnergy: 4.25}, rapl.ErrNonPositiveElapsedTime),
	}
	for _, rec := range recs {
		if err := c.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	got, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d records", len(got))
	}
	if got[0].Power != 42.5 || got[0].Status != StatusOK || got[0].Elapsed != 0.1 {
		t.Fatalf("first record %+v", got[0])
	}
	if !math.IsNaN(got[1].Power) || got[1].Status != StatusInvalidInterval || got[1].TotalEnergy != 4.25 {
		t.Fatalf("second record %+v", got[1])
	}
}

func TestCreateCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "power_meter_out")
	c, err := CreateCSV(dir, "cpu")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "cpu"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), "power,energy,total_energy") {
		t.Fatalf("content %q", content)
	}
}

func TestConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	rec := NewRecord("gpu", ts, rapl.IntervalResult{Power: 1234.5, Energy: 123.45, TotalEnergy: 5000, Elapsed: 100 * time.Millisecond}, nil)
	rec.Derived = []Value{{Name: "efficiency", Value: 0.5}}
	if err := c.Write(rec); err != nil {
		t.Fatal(err)
	}
	bad := NewRecord("gpu", ts, rapl.IntervalResult{TotalEnergy: 5000}, errors.New("lost"))
	if err := c.Write(bad); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"gpu", "1,234.50 W", "total 5,000.000 J", "efficiency 0.500", "[error]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrometheus(t *testing.T) {
	p := NewPrometheus()
	rec := NewRecord("cpu", ts, rapl.IntervalResult{Power: 55, Energy: 5.5, TotalEnergy: 100, Elapsed: 100 * time.Millisecond}, nil)
	if err := p.Write(rec); err != nil {
		t.Fatal(err)
	}
	if err := p.Write(NewRecord("cpu", ts, rapl.IntervalResult{TotalEnergy: 100}, errors.New("lost"))); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`powermeter_power_watts{stream="cpu"} 55`,
		`powermeter_energy_joules_total{stream="cpu"} 100`,
		`powermeter_degraded_intervals_total{status="error",stream="cpu"} 1`,
	} {
		if !strings.Contains(body.String(), want) {
			t.Errorf("metrics missing %q:\n%s", want, body.String())
		}
	}
}

type recordingSink struct {
	records []Record
	closed  bool
	err     error
}

func (r *recordingSink) Write(rec Record) error {
	r.records = append(r.records, rec)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{err: errors.New("full")}, &recordingSink{}
	m := Multi{a, b}
	if err := m.Write(Record{Stream: "cpu"}); err == nil {
		t.Fatal("error from first sink was dropped")
	}
	if len(b.records) != 1 {
		t.Fatal("second sink skipped after first failed")
	}
	if err := m.Close(); err != nil || !a.closed || !b.closed {
		t.Fatal("close did not reach every sink")
	}
}
