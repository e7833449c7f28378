/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"fmt"
	"strings"
)

type Vendor int

const (
	Intel Vendor = iota + 1
	AMD
)

// CPUID leaf 0 vendor signatures
const (
	IntelSignature = "GenuineIntel"
	AMDSignature   = "AuthenticAMD"
)

func (v Vendor) String() string {
	switch v {
	case Intel:
		return "intel"
	case AMD:
		return "amd"
	}
	return fmt.Sprintf("vendor(%d)", int(v))
}

// ParseVendor maps a catalog vendor name to a Vendor.
func ParseVendor(name string) (vendor Vendor, err error) {
	switch strings.ToLower(name) {
	case "intel":
		vendor = Intel
	case "amd":
		vendor = AMD
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownVendor, name)
	}
	return
}

// VendorFromSignature maps a CPUID vendor signature to a Vendor. The first
// signature that matches exactly wins.
func VendorFromSignature(signature string) (vendor Vendor, err error) {
	known := []struct {
		signature string
		vendor    Vendor
	}{
		{IntelSignature, Intel},
		{AMDSignature, AMD},
	}
	for _, k := range known {
		if signature == k.signature {
			vendor = k.vendor
			return
		}
	}
	err = fmt.Errorf("%w: signature %q", ErrUnknownVendor, signature)
	return
}
