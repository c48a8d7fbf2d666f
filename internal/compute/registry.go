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
	"sync"
)

// DeviceFactory creates a new device instance
type DeviceFactory func() Device

var (
	registryMu sync.RWMutex
	devices    = make(map[string]DeviceFactory)
	// Priority order for device selection, first available wins
	devicePriority = []string{DeviceSoftware}
)

// Register registers a device factory with the given name.
// Typically called from init() functions in device implementations.
// Re-registering a name replaces the previous factory
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[name] = factory
}

// Available returns the registered device names
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	return names
}

// Get returns a device instance by name, or nil if not registered
func Get(name string) Device {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := devices[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available device based on priority,
// or nil if no devices are registered
func Default() Device {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, name := range devicePriority {
		if factory, ok := devices[name]; ok {
			if d := factory(); d != nil {
				return d
			}
		}
	}
	for _, factory := range devices {
		if d := factory(); d != nil {
			return d
		}
	}
	return nil
}

// InitDefault initializes and returns the default device
func InitDefault() (Device, error) {
	d := Default()
	if d == nil {
		return nil, ErrDeviceNotAvailable
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}
