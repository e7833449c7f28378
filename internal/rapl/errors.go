/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"errors"
	"fmt"

	"github.com/intel/powermeter/internal/topology"
)

// Initialization errors. Any of these aborts start-up.
var (
	ErrUnknownVendor        = errors.New("unknown CPU vendor")
	ErrTopologyUnavailable  = topology.ErrUnavailable
	ErrRegisterAccessDenied = errors.New("register access denied")
)

// Per-reading errors. The sampling loop logs these and keeps going.
var (
	ErrNodeUnavailable        = errors.New("node unavailable")
	ErrRegisterParseFailure   = errors.New("register parse failure")
	ErrNonPositiveElapsedTime = errors.New("non-positive elapsed time")
)

var (
	ErrDomainNotImplemented = errors.New("domain not implemented")
	ErrNotSupported         = errors.New("not supported on this vendor")
)

// NodeError reports a failed read of one NUMA node's counter.
type NodeError struct {
	Node int
	Core int
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (core %d): %v", e.Node, e.Core, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
