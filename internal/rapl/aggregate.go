/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Domain is a RAPL power domain.
type Domain int

const (
	Package Domain = iota
	Cores
	Uncore
	DRAM
)

func (d Domain) String() string {
	switch d {
	case Package:
		return "package"
	case Cores:
		return "cores"
	case Uncore:
		return "uncore"
	case DRAM:
		return "dram"
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

func ParseDomain(name string) (domain Domain, err error) {
	switch strings.ToLower(name) {
	case "package", "pkg":
		domain = Package
	case "cores", "core", "pp0":
		domain = Cores
	case "uncore", "pp1":
		domain = Uncore
	case "dram":
		domain = DRAM
	default:
		err = fmt.Errorf("unknown RAPL domain %q", name)
	}
	return
}

func (d Domain) register() (id RegisterID, err error) {
	switch d {
	case Package:
		id = PkgEnergy
	case Cores:
		id = CoreEnergy
	default:
		err = fmt.Errorf("%w: %s", ErrDomainNotImplemented, d)
	}
	return
}

// Snapshot is one timestamped reading of every NUMA node's energy counter,
// already scaled to joules. Readings wrap with the hardware counter.
type Snapshot struct {
	Timestamp time.Time
	Energy    []float64
	Valid     []bool
}

// Complete reports whether every node was read successfully.
func (s Snapshot) Complete() bool {
	for _, ok := range s.Valid {
		if !ok {
			return false
		}
	}
	return len(s.Valid) > 0
}

// ReadNodeEnergy returns the energy counter of node (an index into the
// topology) for domain, in joules.
func (c *EngineContext) ReadNodeEnergy(node int, domain Domain) (joules float64, err error) {
	id, err := domain.register()
	if err != nil {
		klog.Warningf("energy readings for the %s domain are not implemented", domain)
		return
	}
	if node < 0 || node >= c.topology.NodeCount() {
		err = &NodeError{Node: node, Core: -1, Err: fmt.Errorf("%w: no such node", ErrNodeUnavailable)}
		return
	}
	core := c.topology.FirstCoreOfNode[node]
	desc, raw, values, err := c.ReadDescriptor(core, id)
	if err != nil {
		if !errors.Is(err, ErrNotSupported) {
			err = fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
		}
		err = &NodeError{Node: node, Core: core, Err: err}
		return
	}
	if len(values) != 1 {
		err = &NodeError{Node: node, Core: core, Err: fmt.Errorf("%w: register %s at %#x decoded %d fields from %#x, expected 1",
			ErrRegisterParseFailure, desc.ID, desc.Address, len(values), raw)}
		return
	}
	joules = float64(values[0]) * c.calibration.EnergyUnit
	return
}

// Snapshot reads every node sequentially. Nodes that fail are marked invalid
// and the returned error joins each failure; readings from the other nodes are
// kept.
func (c *EngineContext) Snapshot(domain Domain) (snap Snapshot, err error) {
	if _, err = domain.register(); err != nil {
		klog.Warningf("energy readings for the %s domain are not implemented", domain)
		return
	}
	n := c.topology.NodeCount()
	snap.Energy = make([]float64, n)
	snap.Valid = make([]bool, n)
	var errs []error
	for node := 0; node < n; node++ {
		joules, e := c.ReadNodeEnergy(node, domain)
		if e != nil {
			errs = append(errs, e)
			continue
		}
		snap.Energy[node] = joules
		snap.Valid[node] = true
	}
	snap.Timestamp = c.clock.Now()
	err = errors.Join(errs...)
	return
}
