/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package topology

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeSysfsFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "0\n", want: []int{0}},
		{in: "0-3", want: []int{0, 1, 2, 3}},
		{in: "0-1,4,6-7\n", want: []int{0, 1, 4, 6, 7}},
		{in: "4,0-1,1", want: []int{0, 1, 4}},
		{in: "", wantErr: true},
		{in: "a-b", wantErr: true},
		{in: "3-1", wantErr: true},
		{in: "0-", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseList(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseList(%q) should have failed", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseList(%q): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseList(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestProbeTwoNodes(t *testing.T) {
	root := t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "0-15\n")
	writeSysfsFile(t, root, "devices/system/node/online", "0-1\n")
	writeSysfsFile(t, root, "devices/system/node/node0/cpulist", "0-7\n")
	writeSysfsFile(t, root, "devices/system/node/node1/cpulist", "8-15\n")
	topo, err := Probe(root)
	if err != nil {
		t.Fatal(err)
	}
	want := Topology{Nodes: []int{0, 1}, FirstCoreOfNode: []int{0, 8}, CoreCount: 16}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if topo.NodeCount() != 2 {
		t.Fatalf("node count %d", topo.NodeCount())
	}
}

func TestProbeSparseNodes(t *testing.T) {
	root := t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "0-7")
	writeSysfsFile(t, root, "devices/system/node/online", "0,2-3")
	writeSysfsFile(t, root, "devices/system/node/node0/cpulist", "0-3")
	writeSysfsFile(t, root, "devices/system/node/node2/cpulist", "4-7")
	writeSysfsFile(t, root, "devices/system/node/node3/cpulist", "\n") // memory only
	topo, err := Probe(root)
	if err != nil {
		t.Fatal(err)
	}
	want := Topology{Nodes: []int{0, 2}, FirstCoreOfNode: []int{0, 4}, CoreCount: 8}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeNoNUMA(t *testing.T) {
	root := t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "0-3")
	topo, err := Probe(root)
	if err != nil {
		t.Fatal(err)
	}
	if topo.NodeCount() != 1 || topo.FirstCoreOfNode[0] != 0 || topo.CoreCount != 4 {
		t.Fatalf("unexpected topology %+v", topo)
	}
}

func TestProbeTooManyNodes(t *testing.T) {
	root := t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "0-15")
	writeSysfsFile(t, root, "devices/system/node/online", "0-8")
	for i := 0; i <= 8; i++ {
		writeSysfsFile(t, root, fmt.Sprintf("devices/system/node/node%d/cpulist", i), fmt.Sprintf("%d", i))
	}
	_, err := Probe(root)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProbeMalformed(t *testing.T) {
	root := t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "garbage")
	_, err := Probe(root)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	root = t.TempDir()
	writeSysfsFile(t, root, "devices/system/cpu/online", "0-3")
	writeSysfsFile(t, root, "devices/system/node/online", "0-1")
	writeSysfsFile(t, root, "devices/system/node/node0/cpulist", "0-1")
	_, err = Probe(root)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("missing node1 cpulist: expected ErrUnavailable, got %v", err)
	}
}

func TestProbeMissingRoot(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestValidateCoreOutOfRange(t *testing.T) {
	topo := Topology{Nodes: []int{0}, FirstCoreOfNode: []int{4}, CoreCount: 4}
	if err := topo.Validate(); err == nil {
		t.Fatal("first core beyond core count should fail")
	}
}
