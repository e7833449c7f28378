/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"fmt"
	"math"
)

// Field names in the power unit register.
const (
	PowerUnitsField          = "power_units"
	EnergyStatusUnitsField   = "energy_status_units"
	TimeUnitsField           = "time_units"
	TotalEnergyConsumedField = "total_energy_consumed"
)

// counterRange is the span of the 32-bit energy status counter.
const counterRange = 1 << 32

// Calibration holds the physical value of one raw increment of each RAPL
// unit, in watts, joules and seconds.
type Calibration struct {
	PowerUnit        float64
	EnergyUnit       float64
	TimeUnit         float64
	WraparoundPeriod float64 // joules represented by a full turn of the energy counter
}

// NewCalibration derives a Calibration from the three unit exponents.
func NewCalibration(powerExp, energyExp, timeExp uint64) Calibration {
	energyUnit := math.Ldexp(1, -int(energyExp))
	return Calibration{
		PowerUnit:        math.Ldexp(1, -int(powerExp)),
		EnergyUnit:       energyUnit,
		TimeUnit:         math.Ldexp(1, -int(timeExp)),
		WraparoundPeriod: energyUnit * counterRange,
	}
}

// Calibrate reads the power unit register from core 0 and decodes its unit
// exponents.
func Calibrate(src RegisterSource, desc Descriptor) (cal Calibration, err error) {
	raw, err := src.ReadRegister(0, desc.Address)
	if err != nil {
		err = fmt.Errorf("%w: reading power unit register %#x: %w", ErrRegisterAccessDenied, desc.Address, err)
		return
	}
	var exps [3]uint64
	for i, name := range []string{PowerUnitsField, EnergyStatusUnitsField, TimeUnitsField} {
		var field Field
		field, err = desc.Field(name)
		if err != nil {
			return
		}
		exps[i] = DecodeField(raw, field)
	}
	cal = NewCalibration(exps[0], exps[1], exps[2])
	return
}
