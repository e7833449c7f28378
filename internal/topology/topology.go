/*
Package topology reads the NUMA layout and online CPU range of the host from
sysfs.
*/
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
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/slices"
	"k8s.io/klog/v2"
)

// MaxNodes is the largest number of NUMA nodes supported.
const MaxNodes = 8

// DefaultRoot is the sysfs mount point.
const DefaultRoot = "/sys"

var ErrUnavailable = errors.New("topology unavailable")

// Topology is the NUMA layout used to pick one representative core per node.
type Topology struct {
	Nodes           []int // online NUMA node ids, ascending
	FirstCoreOfNode []int // first core id of each entry in Nodes
	CoreCount       int
}

func (t Topology) NodeCount() int {
	return len(t.FirstCoreOfNode)
}

// Validate checks the node count bounds and that every representative core is
// online.
func (t Topology) Validate() (err error) {
	if t.NodeCount() == 0 {
		err = fmt.Errorf("%w: no NUMA nodes", ErrUnavailable)
		return
	}
	if t.NodeCount() > MaxNodes {
		err = fmt.Errorf("%w: %d NUMA nodes exceeds maximum of %d", ErrUnavailable, t.NodeCount(), MaxNodes)
		return
	}
	if len(t.Nodes) != len(t.FirstCoreOfNode) {
		err = fmt.Errorf("%w: %d node ids for %d first cores", ErrUnavailable, len(t.Nodes), len(t.FirstCoreOfNode))
		return
	}
	for i, core := range t.FirstCoreOfNode {
		if core < 0 || core >= t.CoreCount {
			err = fmt.Errorf("%w: node %d first core %d outside online range 0-%d", ErrUnavailable, t.Nodes[i], core, t.CoreCount-1)
			return
		}
	}
	return
}

// ParseList parses a kernel cpu/node list such as "0-3,8,10-11" into sorted,
// unique ids.
func ParseList(list string) (ids []int, err error) {
	list = strings.TrimSpace(list)
	if list == "" {
		err = fmt.Errorf("empty list")
		return
	}
	set := mapset.NewThreadUnsafeSet[int]()
	for _, part := range strings.Split(list, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		var first, last int
		first, err = strconv.Atoi(lo)
		if err != nil {
			err = fmt.Errorf("malformed list entry %q: %v", part, err)
			return
		}
		last = first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil {
				err = fmt.Errorf("malformed list entry %q: %v", part, err)
				return
			}
		}
		if first < 0 || last < first {
			err = fmt.Errorf("malformed list entry %q", part)
			return
		}
		for id := first; id <= last; id++ {
			set.Add(id)
		}
	}
	ids = set.ToSlice()
	slices.Sort(ids)
	return
}

func readList(path string) (ids []int, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	ids, err = ParseList(string(content))
	if err != nil {
		err = fmt.Errorf("%s: %v", path, err)
	}
	return
}

// Probe builds the Topology from the sysfs tree mounted at root.
func Probe(root string) (topo Topology, err error) {
	cpuOnline := filepath.Join(root, "devices", "system", "cpu", "online")
	cores, err := readList(cpuOnline)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	topo.CoreCount = cores[len(cores)-1] + 1

	nodeOnline := filepath.Join(root, "devices", "system", "node", "online")
	nodes, err := readList(nodeOnline)
	if errors.Is(err, os.ErrNotExist) {
		// kernels built without NUMA expose no node directory
		klog.V(1).Infof("%s not found, assuming a single node starting at core %d", nodeOnline, cores[0])
		topo.Nodes = []int{0}
		topo.FirstCoreOfNode = []int{cores[0]}
		err = topo.Validate()
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	if len(nodes) > MaxNodes {
		err = fmt.Errorf("%w: %d NUMA nodes exceeds maximum of %d", ErrUnavailable, len(nodes), MaxNodes)
		return
	}
	for _, node := range nodes {
		cpulist := filepath.Join(root, "devices", "system", "node", fmt.Sprintf("node%d", node), "cpulist")
		var content []byte
		content, err = os.ReadFile(cpulist)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			return
		}
		if strings.TrimSpace(string(content)) == "" {
			klog.V(1).Infof("node %d has no cpus, skipping", node)
			continue
		}
		var nodeCores []int
		nodeCores, err = ParseList(string(content))
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnavailable, cpulist, err)
			return
		}
		topo.Nodes = append(topo.Nodes, node)
		topo.FirstCoreOfNode = append(topo.FirstCoreOfNode, nodeCores[0])
	}
	err = topo.Validate()
	return
}
