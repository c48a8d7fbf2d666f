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
	"strings"
	"sync/atomic"
	"testing"
)

func TestRegistryDefault(t *testing.T) {
	dev := Default()
	if dev == nil {
		t.Fatal("no default device registered")
	}
	if dev.Name() != DeviceSoftware {
		t.Errorf("default device got %s expect %s", dev.Name(), DeviceSoftware)
	}
	if Get(DeviceSoftware) == nil {
		t.Errorf("software device not registered by name")
	}
	if Get("no-such-device") != nil {
		t.Errorf("unknown device name must return nil")
	}
}

func TestSubmitBeforeInit(t *testing.T) {
	dev := NewSoftwareDevice(2)
	cl := dev.NewCommandList()
	cl.Dispatch(KernelAvgPool, 1, func(group int) error { return nil })
	if err := cl.Submit(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("submit before init got %v expect ErrNotInitialized", err)
	}
}

func TestRunCoversAllGroups(t *testing.T) {
	dev, err := InitDefault()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	const groups = 100
	var hits [groups]int32
	err = Run(dev, KernelAvgPool, groups, func(group int) error {
		atomic.AddInt32(&hits[group], 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for g, h := range hits {
		if h != 1 {
			t.Errorf("group %d executed %d times expect 1", g, h)
		}
	}
}

func TestRunErrorNamesKernel(t *testing.T) {
	dev := NewSoftwareDevice(4)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	boom := errors.New("boom")
	err := Run(dev, KernelMergeSpatial, 8, func(group int) error {
		if group == 5 {
			return boom
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected error from failing group")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap the task error", err)
	}
	if !strings.Contains(err.Error(), KernelMergeSpatial.String()) {
		t.Errorf("error %q does not name the failing kernel", err.Error())
	}
}

func TestSingleWorkerSerial(t *testing.T) {
	dev := NewSoftwareDevice(1)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	// with one worker, groups run in order without synchronization
	order := make([]int, 0, 10)
	err := Run(dev, KernelBlur, 10, func(group int) error {
		order = append(order, group)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range order {
		if g != i {
			t.Errorf("position %d got group %d expect %d", i, g, i)
		}
	}
}

func TestKernelString(t *testing.T) {
	if KernelAvgPool.String() == "" {
		t.Errorf("kernel name missing for KernelAvgPool")
	}
	if got := Kernel(-1).String(); !strings.Contains(got, "unknown") {
		t.Errorf("out of range kernel got %q expect unknown marker", got)
	}
}
