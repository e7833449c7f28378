/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"fmt"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/topology"
	"k8s.io/klog/v2"
)

// RegisterSource is the capability the engine needs from the hardware: raw
// register reads on a given core and the CPUID vendor signature.
type RegisterSource interface {
	ReadRegister(core int, address uint64) (uint64, error)
	VendorSignature() (string, error)
}

// EngineContext is built once at start-up and is read-only afterwards. All
// decoding, aggregation and diffing goes through it.
type EngineContext struct {
	vendor      Vendor
	topology    topology.Topology
	calibration Calibration
	catalog     *Catalog
	source      RegisterSource
	clock       clock.Clock
}

// NewEngineContext detects the vendor, validates the topology and calibrates
// the energy units. Any failure here is fatal to the caller.
func NewEngineContext(src RegisterSource, topo topology.Topology, catalog *Catalog, clk clock.Clock) (ctx *EngineContext, err error) {
	signature, err := src.VendorSignature()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnknownVendor, err)
		return
	}
	vendor, err := VendorFromSignature(signature)
	if err != nil {
		return
	}
	err = topo.Validate()
	if err != nil {
		return
	}
	unitDesc, err := catalog.Lookup(vendor, PowerUnit)
	if err != nil {
		return
	}
	cal, err := Calibrate(src, unitDesc)
	if err != nil {
		return
	}
	klog.V(1).Infof("vendor %s, %d nodes, %d cores, energy unit %g J, wraparound %g J",
		vendor, topo.NodeCount(), topo.CoreCount, cal.EnergyUnit, cal.WraparoundPeriod)
	ctx = &EngineContext{
		vendor:      vendor,
		topology:    topo,
		calibration: cal,
		catalog:     catalog,
		source:      src,
		clock:       clk,
	}
	return
}

func (c *EngineContext) Vendor() Vendor {
	return c.vendor
}

func (c *EngineContext) Topology() topology.Topology {
	return c.topology
}

func (c *EngineContext) Calibration() Calibration {
	return c.calibration
}

func (c *EngineContext) Catalog() *Catalog {
	return c.catalog
}

// ReadDescriptor reads and decodes register id on core.
func (c *EngineContext) ReadDescriptor(core int, id RegisterID) (desc Descriptor, raw uint64, values []uint64, err error) {
	desc, err = c.catalog.Lookup(c.vendor, id)
	if err != nil {
		return
	}
	raw, err = c.source.ReadRegister(core, desc.Address)
	if err != nil {
		return
	}
	klog.V(2).Infof("core %d register %s (%#x) = %#016x", core, id, desc.Address, raw)
	values = Decode(raw, desc.Fields)
	return
}
