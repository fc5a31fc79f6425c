package utils

import (
	"fmt"

	"github.com/notargets/kerneltuner/device"
)

// CreateTestDevice creates a Device for examples and integration tests,
// preferring parallel backends.
func CreateTestDevice() device.Device {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	for _, props := range backends {
		dev, err := device.NewOCCA(props)
		if err == nil {
			fmt.Printf("Created %s Device\n", dev.Info().Name)
			return dev
		}
	}

	// Should not reach here
	panic("Failed to create any Device")
}
