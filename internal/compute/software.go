// Copyright (C) 2024 The burstlight authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package compute

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid"
)

// DeviceSoftware is the name of the in-process reference device
const DeviceSoftware = "software"

func init() {
	Register(DeviceSoftware, func() Device { return NewSoftwareDevice(0) })
}

// SoftwareDevice executes kernel dispatches in process, fanning groups
// out over a bounded pool of goroutines. Each stage allocates fresh
// output storage, so tasks of one dispatch never write shared state
// and need no locks
type SoftwareDevice struct {
	workers     int
	initialized bool
}

// NewSoftwareDevice creates a software device with the given worker
// count. workers<=0 selects the CPU logical core count
func NewSoftwareDevice(workers int) *SoftwareDevice {
	if workers <= 0 {
		workers = cpuid.CPU.LogicalCores
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
	}
	return &SoftwareDevice{workers: workers}
}

func (d *SoftwareDevice) Name() string { return DeviceSoftware }

func (d *SoftwareDevice) Init() error {
	d.initialized = true
	return nil
}

func (d *SoftwareDevice) Close() {
	d.initialized = false
}

func (d *SoftwareDevice) NewCommandList() CommandList {
	return &softwareCommandList{dev: d}
}

// WaitIdle is trivially satisfied: Submit on this device only returns
// once all dispatched groups have completed
func (d *SoftwareDevice) WaitIdle() error { return nil }

type softwareDispatch struct {
	kernel Kernel
	groups int
	task   Task
}

type softwareCommandList struct {
	dev        *SoftwareDevice
	dispatches []softwareDispatch
}

func (cl *softwareCommandList) Dispatch(k Kernel, groups int, task Task) {
	cl.dispatches = append(cl.dispatches, softwareDispatch{kernel: k, groups: groups, task: task})
}

func (cl *softwareCommandList) Submit() error {
	if !cl.dev.initialized {
		return ErrNotInitialized
	}
	for _, d := range cl.dispatches {
		if err := cl.dev.run(d); err != nil {
			return err
		}
	}
	cl.dispatches = cl.dispatches[:0]
	return nil
}

// run executes all groups of one dispatch, limiting parallelism to the
// worker count. The first task error aborts the dispatch and is
// surfaced with the kernel name, fatal for the current burst
func (d *SoftwareDevice) run(disp softwareDispatch) error {
	if disp.groups <= 0 || disp.task == nil {
		return nil
	}
	if disp.groups == 1 || d.workers == 1 {
		for g := 0; g < disp.groups; g++ {
			if err := disp.task(g); err != nil {
				return fmt.Errorf("kernel %s: %w", disp.kernel, err)
			}
		}
		return nil
	}

	sem := make(chan bool, d.workers)
	errs := make(chan error, disp.groups)
	for g := 0; g < disp.groups; g++ {
		sem <- true
		go func(g int) {
			defer func() { <-sem }()
			errs <- disp.task(g)
		}(g)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
	close(errs)
	for err := range errs {
		if err != nil {
			return fmt.Errorf("kernel %s: %w", disp.kernel, err)
		}
	}
	return nil
}
