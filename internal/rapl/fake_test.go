/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/topology"
)

type fakeSource struct {
	signature string
	regs      map[int]map[uint64]uint64 // core -> address -> value
	failCores map[int]bool
}

func newFakeSource(signature string) *fakeSource {
	return &fakeSource{
		signature: signature,
		regs:      make(map[int]map[uint64]uint64),
		failCores: make(map[int]bool),
	}
}

func (f *fakeSource) set(core int, address uint64, val uint64) {
	if f.regs[core] == nil {
		f.regs[core] = make(map[uint64]uint64)
	}
	f.regs[core][address] = val
}

func (f *fakeSource) ReadRegister(core int, address uint64) (uint64, error) {
	if f.failCores[core] {
		return 0, fmt.Errorf("open /dev/cpu/%d/msr: %w", core, fs.ErrPermission)
	}
	val, ok := f.regs[core][address]
	if !ok {
		return 0, fmt.Errorf("core %d register %#x not present", core, address)
	}
	return val, nil
}

func (f *fakeSource) VendorSignature() (string, error) {
	return f.signature, nil
}

// unitRegister packs power, energy and time unit exponents the way the
// hardware lays them out.
func unitRegister(power, energy, tu uint64) uint64 {
	return power | energy<<8 | tu<<16
}

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func twoNodeTopology() topology.Topology {
	return topology.Topology{Nodes: []int{0, 1}, FirstCoreOfNode: []int{0, 8}, CoreCount: 16}
}

func newTestContext(t *testing.T, src *fakeSource, topo topology.Topology) (*EngineContext, *clock.FakeClock) {
	t.Helper()
	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.Fake(testStart)
	ctx, err := NewEngineContext(src, topo, catalog, clk)
	if err != nil {
		t.Fatal(err)
	}
	return ctx, clk
}
