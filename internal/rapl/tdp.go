/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import "fmt"

// PowerInfo is the package power range advertised by PKG_POWER_INFO.
type PowerInfo struct {
	ThermalSpecPower  float64 // watts
	MinimumPower      float64 // watts
	MaximumPower      float64 // watts
	MaximumTimeWindow float64 // seconds
}

// TDP sums the thermal spec power of every node, one package per node. The
// minimum, maximum and time window are those of the first node. Only Intel
// exposes the register.
func (c *EngineContext) TDP() (info PowerInfo, err error) {
	if c.vendor != Intel {
		err = fmt.Errorf("%w: package power info on %s", ErrNotSupported, c.vendor)
		return
	}
	for i, core := range c.topology.FirstCoreOfNode {
		desc, _, values, e := c.ReadDescriptor(core, PkgPowerInfo)
		if e != nil {
			err = fmt.Errorf("%w: node %d: %w", ErrRegisterAccessDenied, c.topology.Nodes[i], e)
			info = PowerInfo{}
			return
		}
		byName := make(map[string]uint64, len(values))
		for j, field := range desc.Fields {
			byName[field.Name] = values[j]
		}
		info.ThermalSpecPower += float64(byName["thermal_spec_power"]) * c.calibration.PowerUnit
		if i == 0 {
			info.MinimumPower = float64(byName["minimum_power"]) * c.calibration.PowerUnit
			info.MaximumPower = float64(byName["maximum_power"]) * c.calibration.PowerUnit
			info.MaximumTimeWindow = float64(byName["maximum_time_window"]) * c.calibration.TimeUnit
		}
	}
	return
}
