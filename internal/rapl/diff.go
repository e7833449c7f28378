/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"fmt"
	"math"
	"time"
)

// IntervalResult is the energy and average power over one sampling interval.
type IntervalResult struct {
	Power        float64 // watts
	Energy       float64 // joules consumed during the interval
	TotalEnergy  float64 // joules consumed since the first snapshot
	Elapsed      time.Duration
	MissingNodes []int // node indexes omitted because a reading was invalid
}

// Degraded reports whether some nodes were left out of the result.
func (r IntervalResult) Degraded() bool {
	return len(r.MissingNodes) > 0
}

// Diff computes the energy consumed between prev and cur, correcting for at
// most one wraparound of each node counter, and adds it to total. The counter
// must not wrap twice within one interval; that cannot be detected here.
//
// When the elapsed time is not positive, Power and Energy are NaN, TotalEnergy
// equals total and ErrNonPositiveElapsedTime is returned. The same holds with
// ErrNodeUnavailable when no node is valid in both snapshots.
func (c *EngineContext) Diff(prev, cur Snapshot, total float64) (IntervalResult, error) {
	return DiffSnapshots(prev, cur, total, c.calibration.WraparoundPeriod)
}

// DiffSnapshots is Diff with an explicit wraparound period.
func DiffSnapshots(prev, cur Snapshot, total float64, wraparoundPeriod float64) (result IntervalResult, err error) {
	result.TotalEnergy = total
	result.Elapsed = cur.Timestamp.Sub(prev.Timestamp)
	if result.Elapsed <= 0 {
		result.Power = math.NaN()
		result.Energy = math.NaN()
		err = fmt.Errorf("%w: %v between snapshots", ErrNonPositiveElapsedTime, result.Elapsed)
		return
	}
	if len(prev.Energy) != len(cur.Energy) {
		result.Power = math.NaN()
		result.Energy = math.NaN()
		err = fmt.Errorf("%w: snapshots cover %d and %d nodes", ErrRegisterParseFailure, len(prev.Energy), len(cur.Energy))
		return
	}
	var energy float64
	for n := range cur.Energy {
		if !valid(prev, n) || !valid(cur, n) {
			result.MissingNodes = append(result.MissingNodes, n)
			continue
		}
		delta := cur.Energy[n] - prev.Energy[n]
		if delta < 0 {
			delta += wraparoundPeriod
		}
		energy += delta
	}
	if len(result.MissingNodes) == len(cur.Energy) {
		result.Power = math.NaN()
		result.Energy = math.NaN()
		err = fmt.Errorf("%w: no node was read in both snapshots", ErrNodeUnavailable)
		return
	}
	result.Energy = energy
	result.Power = energy / result.Elapsed.Seconds()
	result.TotalEnergy = total + energy
	return
}

func valid(s Snapshot, n int) bool {
	// snapshots built by hand without validity flags count as complete
	if s.Valid == nil {
		return true
	}
	return n < len(s.Valid) && s.Valid[n]
}

// Accumulator carries the running total and the previous snapshot between
// intervals.
type Accumulator struct {
	ctx      *EngineContext
	previous Snapshot
	total    float64
	seeded   bool
}

func NewAccumulator(ctx *EngineContext) *Accumulator {
	return &Accumulator{ctx: ctx}
}

// Seed sets the snapshot the next Update is diffed against.
func (a *Accumulator) Seed(snap Snapshot) {
	a.previous = snap
	a.seeded = true
}

// Update diffs snap against the previous snapshot and makes snap the new
// previous one. The total only grows when the interval is valid.
func (a *Accumulator) Update(snap Snapshot) (result IntervalResult, err error) {
	if !a.seeded {
		a.Seed(snap)
		err = fmt.Errorf("accumulator was not seeded")
		result.Power, result.Energy, result.TotalEnergy = math.NaN(), math.NaN(), a.total
		return
	}
	result, err = a.ctx.Diff(a.previous, snap, a.total)
	if err == nil {
		a.total = result.TotalEnergy
	}
	a.previous = snap
	return
}

func (a *Accumulator) Total() float64 {
	return a.total
}
