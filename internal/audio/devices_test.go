// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Errorf("failed to terminate PortAudio: %v", err)
		}
	})
}

func TestDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := Devices()
	if err != nil {
		t.Fatalf("Devices error: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("no audio devices on this system")
	}

	for i, d := range devices {
		if d.ID != i {
			t.Errorf("device %d: ID mismatch %d", i, d.ID)
		}
		if d.Name == "" {
			t.Errorf("device %d has empty name", i)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("device %d has invalid sample rate %v", i, d.DefaultSampleRate)
		}
	}
}

func TestDeviceResolutionRejectsBadIDs(t *testing.T) {
	setupPortAudio(t)

	if _, err := inputDevice(9999); err == nil {
		t.Error("expected error for out-of-range input device")
	}
	if _, err := outputDevice(9999); err == nil {
		t.Error("expected error for out-of-range output device")
	}
}
