/*
Package msr implements functions to read MSRs.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/cpuid/v2"
	"k8s.io/klog/v2"
)

// DefaultRoot is where the msr kernel module exposes the per-core devices.
const DefaultRoot = "/dev/cpu"

const ppidRegister = 0x4F // unique per package

type MSR struct {
	root         string
	fileNames    []string // all msr file names
	pkgFileNames []string // one file name per package (CPU/Socket)
	fileStyleNew bool     // new style if true, old style if false
	lowBit       int      // low bit in requested bit range
	highBit      int      // high bit in requested bit range
}

func NewMSR() (msr *MSR, err error) {
	return NewMSRAt(DefaultRoot)
}

// NewMSRAt uses the msr device files found under root instead of /dev/cpu.
func NewMSRAt(root string) (msr *MSR, err error) {
	msr = &MSR{
		root:    root,
		lowBit:  0,
		highBit: 63,
	}
	err = msr.init()
	return
}

func (msr *MSR) init() (err error) {
	_, err = os.Stat(filepath.Join(msr.root, "cpu0", "msr"))
	if err == nil {
		msr.fileStyleNew = false
		msr.fileNames, err = filepath.Glob(filepath.Join(msr.root, "cpu*", "msr"))
		if err != nil {
			return
		}
	} else {
		_, err = os.Stat(filepath.Join(msr.root, "0", "msr"))
		if err == nil {
			msr.fileStyleNew = true
			msr.fileNames, err = filepath.Glob(filepath.Join(msr.root, "*", "msr"))
			if err != nil {
				return
			}
		} else {
			err = fmt.Errorf("could not find the MSR files in %s (maybe you need a sudo modprobe msr)", msr.root)
			return
		}
	}
	// determine which MSR files to use for packages
	// don't return an error if this fails, we can't get the PPID on all platforms
	seen := make(map[uint64]bool)
	for _, fileName := range msr.fileNames {
		val, e := msr.read(ppidRegister, fileName)
		if e != nil {
			klog.V(2).Infof("package id not readable from %s: %v", fileName, e)
			msr.pkgFileNames = nil
			return
		}
		if !seen[val] {
			msr.pkgFileNames = append(msr.pkgFileNames, fileName)
			seen[val] = true
		}
	}
	return
}

// returns filenames for specified core and scope
// core == -1 indicates all cores
// packageScope arg ignored if specific core is requested
func (msr *MSR) getMSRFileNames(core int, packageScope bool) (fileNames []string) {
	if core == -1 {
		if packageScope {
			fileNames = msr.pkgFileNames
		} else {
			fileNames = msr.fileNames
		}
	} else if msr.fileStyleNew {
		fileNames = append(fileNames, filepath.Join(msr.root, fmt.Sprintf("%d", core), "msr"))
	} else {
		fileNames = append(fileNames, filepath.Join(msr.root, fmt.Sprintf("cpu%d", core), "msr"))
	}
	return
}

func maskUint64(highBit int, lowBit int, val uint64) (v uint64) {
	bits := highBit - lowBit + 1
	if bits < 64 {
		val >>= uint64(lowBit)
		val &= (uint64(1) << bits) - 1
	}
	v = val
	return
}

// read returns the full 64-bit register value at offset reg of fileName
func (msr *MSR) read(reg uint64, fileName string) (val uint64, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			err = fmt.Errorf("%w (elevated permissions required to read MSRs)", err)
		}
		return
	}
	defer f.Close()
	buf := make([]byte, 8)
	read, err := f.ReadAt(buf, int64(reg))
	if err != nil {
		err = fmt.Errorf("reading msr %#x from %s: %w", reg, fileName, err)
		return
	}
	if read != len(buf) {
		err = fmt.Errorf("didn't read intended number of bytes")
		return
	}
	val = binary.LittleEndian.Uint64(buf)
	return
}

// SetBitRange filters bits for subsequent calls to ReadOne, ReadAll and ReadPackages
func (msr *MSR) SetBitRange(highBit int, lowBit int) (err error) {
	if lowBit >= highBit {
		err = fmt.Errorf("lowBit must be less than highBit")
		return
	}
	if lowBit < 0 || lowBit > 62 {
		err = fmt.Errorf("lowBit must be a value between 0 and 62 (inclusive)")
		return
	}
	if highBit < 1 || highBit > 63 {
		err = fmt.Errorf("highBit must be a value between 1 and 63 (inclusive)")
		return
	}
	msr.lowBit = lowBit
	msr.highBit = highBit
	return
}

// CoreCount returns the number of msr device files found.
func (msr *MSR) CoreCount() int {
	return len(msr.fileNames)
}

// ReadAll returns the register value for all cores
func (msr *MSR) ReadAll(reg uint64) (out []uint64, err error) {
	for _, fileName := range msr.getMSRFileNames(-1, false) {
		var val uint64
		val, err = msr.read(reg, fileName)
		if err != nil {
			return
		}
		out = append(out, maskUint64(msr.highBit, msr.lowBit, val))
	}
	return
}

// ReadOne returns the register value for the specified core
func (msr *MSR) ReadOne(reg uint64, core int) (out uint64, err error) {
	out, err = msr.ReadRegister(core, reg)
	if err != nil {
		return
	}
	out = maskUint64(msr.highBit, msr.lowBit, out)
	return
}

// ReadPackages returns the specified register value for each package (CPU/Socket)
func (msr *MSR) ReadPackages(reg uint64) (out []uint64, err error) {
	fileNames := msr.getMSRFileNames(-1, true)
	if len(fileNames) == 0 {
		err = fmt.Errorf("unable to identify msr files for package")
		return
	}
	for _, fileName := range fileNames {
		var val uint64
		val, err = msr.read(reg, fileName)
		if err != nil {
			return
		}
		out = append(out, maskUint64(msr.highBit, msr.lowBit, val))
	}
	return
}

// ReadRegister returns the unfiltered register value at address on core. The
// bit range set by SetBitRange does not apply.
func (msr *MSR) ReadRegister(core int, address uint64) (val uint64, err error) {
	if core < 0 {
		err = fmt.Errorf("invalid core %d", core)
		return
	}
	fileNames := msr.getMSRFileNames(core, false)
	val, err = msr.read(address, fileNames[0])
	return
}

// VendorSignature returns the CPUID leaf 0 vendor string of the running CPU.
func (msr *MSR) VendorSignature() (signature string, err error) {
	signature = cpuid.CPU.VendorString
	if signature == "" {
		err = fmt.Errorf("CPUID vendor string not available")
	}
	return
}
