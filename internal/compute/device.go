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
	"errors"
)

// Common device errors
var (
	// ErrDeviceNotAvailable is returned when a requested device is not available
	ErrDeviceNotAvailable = errors.New("compute: device not available")

	// ErrNotInitialized is returned when dispatching before Init
	ErrNotInitialized = errors.New("compute: device not initialized")
)

// A Task executes one dispatch group of a kernel. Group indices run
// from 0 to groups-1. Planes are shared in process, so tasks receive
// their inputs through closure capture rather than buffer binding.
type Task func(group int) error

// A CommandList records kernel dispatches for execution on a device.
// Dispatches submitted in one list execute in recording order.
type CommandList interface {
	// Dispatch records a kernel invocation over the given number of groups
	Dispatch(k Kernel, groups int, task Task)

	// Submit executes the recorded dispatches
	Submit() error
}

// Device is the minimal compute contract the merge core consumes.
// Resource creation boilerplate stays behind the implementation.
type Device interface {
	// Name returns the device identifier (e.g. "software")
	Name() string

	// Init prepares the device for dispatching
	Init() error

	// Close releases all device resources
	Close()

	// NewCommandList creates an empty command list
	NewCommandList() CommandList

	// WaitIdle blocks until all submitted work has completed
	WaitIdle() error
}

// Run dispatches a single kernel and waits for device idle. The merge
// pipeline is fully synchronous: every stage submits, then waits,
// before the next data-dependent stage may start.
func Run(dev Device, k Kernel, groups int, task Task) error {
	cl := dev.NewCommandList()
	cl.Dispatch(k, groups, task)
	if err := cl.Submit(); err != nil {
		return err
	}
	return dev.WaitIdle()
}
