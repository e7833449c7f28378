/*
Package gpu samples the cumulative energy counters of the GPUs in the system.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package gpu

import (
	"errors"
	"fmt"
	"math"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/rapl"
	"k8s.io/klog/v2"
)

// MaxDevices is the largest number of GPUs sampled.
const MaxDevices = 16

var ErrNoDevices = errors.New("no GPU devices")

// Source exposes a per-device energy counter in millijoules.
type Source interface {
	DeviceCount() int
	TotalEnergy(device int) (millijoules uint64, err error)
	Close() error
}

// Meter turns a Source into snapshots and interval results comparable with
// the CPU stream.
type Meter struct {
	src   Source
	clock clock.Clock
}

func NewMeter(src Source, clk clock.Clock) (m *Meter, err error) {
	count := src.DeviceCount()
	if count == 0 {
		err = ErrNoDevices
		return
	}
	if count > MaxDevices {
		err = fmt.Errorf("%d GPU devices exceeds maximum of %d", count, MaxDevices)
		return
	}
	m = &Meter{src: src, clock: clk}
	return
}

func (m *Meter) DeviceCount() int {
	return m.src.DeviceCount()
}

// Snapshot reads every device's counter in joules.
func (m *Meter) Snapshot() (snap rapl.Snapshot, err error) {
	n := m.src.DeviceCount()
	snap.Energy = make([]float64, n)
	snap.Valid = make([]bool, n)
	var errs []error
	for i := 0; i < n; i++ {
		mj, e := m.src.TotalEnergy(i)
		if e != nil {
			errs = append(errs, fmt.Errorf("gpu %d: %w", i, e))
			continue
		}
		snap.Energy[i] = float64(mj) / 1000
		snap.Valid[i] = true
	}
	snap.Timestamp = m.clock.Now()
	err = errors.Join(errs...)
	return
}

// Diff sums the energy of all devices between prev and cur. A counter that
// went backwards contributes nothing for the interval.
func (m *Meter) Diff(prev, cur rapl.Snapshot, total float64) (result rapl.IntervalResult, err error) {
	result.TotalEnergy = total
	result.Elapsed = cur.Timestamp.Sub(prev.Timestamp)
	if result.Elapsed <= 0 {
		result.Power, result.Energy = math.NaN(), math.NaN()
		err = fmt.Errorf("%w: %v between snapshots", rapl.ErrNonPositiveElapsedTime, result.Elapsed)
		return
	}
	if len(prev.Energy) != len(cur.Energy) {
		result.Power, result.Energy = math.NaN(), math.NaN()
		err = fmt.Errorf("snapshots cover %d and %d devices", len(prev.Energy), len(cur.Energy))
		return
	}
	var energy float64
	for i := range cur.Energy {
		if i >= len(prev.Valid) || i >= len(cur.Valid) || !prev.Valid[i] || !cur.Valid[i] {
			result.MissingNodes = append(result.MissingNodes, i)
			continue
		}
		delta := cur.Energy[i] - prev.Energy[i]
		if delta < 0 {
			klog.V(1).Infof("gpu %d energy counter went from %g J to %g J, ignoring interval", i, prev.Energy[i], cur.Energy[i])
			continue
		}
		energy += delta
	}
	if len(result.MissingNodes) == len(cur.Energy) {
		result.Power, result.Energy = math.NaN(), math.NaN()
		err = fmt.Errorf("%w: no GPU was read in both snapshots", rapl.ErrNodeUnavailable)
		return
	}
	result.Energy = energy
	result.Power = energy / result.Elapsed.Seconds()
	result.TotalEnergy = total + energy
	return
}

// None is a Source without devices, used when no GPU library is present.
type None struct{}

func (None) DeviceCount() int { return 0 }

func (None) TotalEnergy(device int) (uint64, error) {
	return 0, fmt.Errorf("gpu %d: %w", device, ErrNoDevices)
}

func (None) Close() error { return nil }
