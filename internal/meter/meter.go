/*
Package meter runs the sampling loop that turns consecutive energy snapshots
into interval records.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package meter

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/derived"
	"github.com/intel/powermeter/internal/rapl"
	"github.com/intel/powermeter/internal/sink"
	"k8s.io/klog/v2"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrAlreadyRunning = errors.New("meter is already running")
	ErrNotRunning     = errors.New("meter is not running")
)

// Stream is one independently computed telemetry source, such as the CPU
// packages or the GPUs.
type Stream struct {
	Name     string
	Snapshot func() (rapl.Snapshot, error)
	Diff     func(prev, cur rapl.Snapshot, total float64) (rapl.IntervalResult, error)
	Sink     sink.Sink
	Derived  *derived.Evaluator // optional
}

type streamState struct {
	Stream
	previous rapl.Snapshot
	total    float64
}

// Meter owns one background goroutine that samples every stream once per
// interval.
type Meter struct {
	interval time.Duration
	clock    clock.Clock
	streams  []*streamState
	state    atomic.Int32
	stop     atomic.Bool
	done     chan struct{}
}

func New(interval time.Duration, clk clock.Clock, streams ...Stream) (m *Meter, err error) {
	if interval <= 0 {
		err = fmt.Errorf("sampling interval must be positive, got %v", interval)
		return
	}
	if len(streams) == 0 {
		err = fmt.Errorf("no streams to sample")
		return
	}
	m = &Meter{interval: interval, clock: clk}
	for _, s := range streams {
		if s.Snapshot == nil || s.Diff == nil || s.Sink == nil {
			err = fmt.Errorf("stream %s is incomplete", s.Name)
			m = nil
			return
		}
		m.streams = append(m.streams, &streamState{Stream: s})
	}
	return
}

func (m *Meter) State() State {
	return State(m.state.Load())
}

// Total returns the cumulative energy of the named stream. It is only
// meaningful once the meter is idle again.
func (m *Meter) Total(stream string) float64 {
	for _, s := range m.streams {
		if s.Name == stream {
			return s.total
		}
	}
	return 0
}

// Start seeds every stream with an initial snapshot and launches the loop.
func (m *Meter) Start() error {
	if !m.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyRunning
	}
	for _, s := range m.streams {
		snap, err := s.Snapshot()
		if err != nil {
			klog.Errorf("initial %s snapshot: %v", s.Name, err)
		}
		s.previous = snap
	}
	m.stop.Store(false)
	m.done = make(chan struct{})
	go m.loop()
	return nil
}

// Stop asks the loop to exit and waits until it has. The iteration in
// progress is completed first.
func (m *Meter) Stop() error {
	if !m.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return ErrNotRunning
	}
	m.stop.Store(true)
	<-m.done
	return nil
}

// Done is closed when the loop exits.
func (m *Meter) Done() <-chan struct{} {
	return m.done
}

func (m *Meter) loop() {
	defer func() {
		m.state.Store(int32(Idle))
		close(m.done)
	}()
	for !m.stop.Load() {
		<-m.clock.After(m.interval)
		for _, s := range m.streams {
			m.sample(s)
		}
	}
}

func (m *Meter) sample(s *streamState) {
	cur, readErr := s.Snapshot()
	if readErr != nil {
		klog.V(1).Infof("%s snapshot: %v", s.Name, readErr)
	}
	result, err := s.Diff(s.previous, cur, s.total)
	s.previous = cur
	if err != nil {
		klog.V(1).Infof("%s interval: %v", s.Name, err)
	} else {
		s.total = result.TotalEnergy
		// nothing at all was read
		if readErr != nil && len(result.MissingNodes) == len(cur.Energy) {
			err = readErr
		}
	}
	rec := sink.NewRecord(s.Name, cur.Timestamp, result, err)
	if s.Derived != nil {
		rec.Derived = s.Derived.Evaluate(rec)
	}
	klog.V(1).Infof("%s: %.3f W %.3f J total %.3f J %s", s.Name, rec.Power, rec.Energy, rec.TotalEnergy, rec.Status)
	if err := s.Sink.Write(rec); err != nil {
		klog.Errorf("failed to write %s record: %v", s.Name, err)
	}
}
