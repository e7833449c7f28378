/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"k8s.io/klog/v2"
)

// NVML reads NVIDIA GPU energy through the NVIDIA Management Library.
type NVML struct {
	devices []nvml.Device
}

// OpenNVML initializes NVML and collects a handle for every device. It fails
// when the library is not installed.
func OpenNVML() (n *NVML, err error) {
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		err = fmt.Errorf("failed to initialize NVML: %s", nvml.ErrorString(ret))
		return
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		err = fmt.Errorf("failed to get GPU count: %s", nvml.ErrorString(ret))
		return
	}
	n = &NVML{}
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			nvml.Shutdown()
			n = nil
			err = fmt.Errorf("failed to get handle of GPU %d: %s", i, nvml.ErrorString(ret))
			return
		}
		n.devices = append(n.devices, device)
	}
	klog.V(1).Infof("NVML found %d GPUs", count)
	return
}

func (n *NVML) DeviceCount() int {
	return len(n.devices)
}

func (n *NVML) TotalEnergy(device int) (millijoules uint64, err error) {
	if device < 0 || device >= len(n.devices) {
		err = fmt.Errorf("no GPU %d", device)
		return
	}
	millijoules, ret := n.devices[device].GetTotalEnergyConsumption()
	if ret != nvml.SUCCESS {
		err = fmt.Errorf("failed to read energy of GPU %d: %s", device, nvml.ErrorString(ret))
	}
	return
}

func (n *NVML) Close() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("failed to shut down NVML: %s", nvml.ErrorString(ret))
	}
	return nil
}
