// Package device decides, once per process, where models are placed.
package device

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Kind is a placement target understood by the model workers.
type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// Placement is the fixed device decision for the process lifetime.
type Placement struct {
	// Kind is the device every model is loaded onto.
	Kind Kind
	// Accelerated reports whether an accelerator was found, regardless of
	// whether the configuration chose to use it.
	Accelerated bool
}

// Probe inspects the host for an accelerator. Tests replace it.
type Probe func() bool

// DefaultProbe looks for an NVIDIA driver node or the nvidia-smi tool.
func DefaultProbe() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}

// Resolve turns the configured preference (auto|cpu|cuda) into a Placement.
// Asking for cuda on a host without one is an error; auto prefers the
// accelerator when present and falls back to cpu.
func Resolve(preference string, probe Probe, logger *slog.Logger) (Placement, error) {
	if probe == nil {
		probe = DefaultProbe
	}
	if logger == nil {
		logger = slog.Default()
	}

	accelerated := probe()

	var kind Kind
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "", "auto":
		kind = CPU
		if accelerated {
			kind = CUDA
		}
	case "cpu":
		kind = CPU
	case "cuda", "gpu":
		if !accelerated {
			return Placement{}, fmt.Errorf("device: cuda requested but no accelerator is available")
		}
		kind = CUDA
	default:
		return Placement{}, fmt.Errorf("device: unknown preference %q", preference)
	}

	logger.Info("Device placement resolved", "device", kind, "accelerator_available", accelerated, "preference", preference)
	return Placement{Kind: kind, Accelerated: accelerated}, nil
}
