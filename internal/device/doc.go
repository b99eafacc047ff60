// Package device provides the Device Registry for Hearth Core.
//
// The Device Registry is the central catalogue of all controllable and
// monitorable entities in a Hearth installation. It manages device
// lifecycle, state, and provides query operations for the automation
// engine and the MQTT driver layer.
//
// # Key Types
//
//   - Device: The core entity representing a controllable/monitorable device
//   - DeviceType: Specific device classification (light, thermostat, lock, etc.)
//   - Capability: What a device can do (on_off, brightness, lock_unlock, etc.)
//   - Status: Connectivity state (online, offline, error)
//
// # Usage
//
//	// Create repository and registry
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	// Load devices into cache on startup
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Create a new device
//	dev := &device.Device{
//	    Name: "Living Room Lamp",
//	    Type: device.DeviceTypeLight,
//	    Capabilities: []device.Capability{
//	        device.CapOnOff,
//	        device.CapBrightness,
//	    },
//	    State: device.State{"on": false, "brightness": 0},
//	}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//
//	// Query devices
//	lights, _ := registry.GetDevicesByType(ctx, device.DeviceTypeLight)
//	dev, _ := registry.GetDevice(ctx, "device-uuid")
//
//	// Update state (from the driver layer)
//	registry.SetDeviceState(ctx, id, device.State{"on": true, "brightness": 75})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex. The Repository implementation must also be thread-safe.
//
// # Related Documentation
//
//   - migrations/20260830_100000_initial_schema.up.sql: database schema
package device
