package metric

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"telemetryagent/internal/event"
)

// SystemSource reports the static system context: operating system,
// processor and installed memory.
type SystemSource struct {
	BaseSource
}

// NewSystemSource creates a system context source. The context rarely
// changes, so it is sampled hourly.
func NewSystemSource() *SystemSource {
	return &SystemSource{BaseSource: NewBaseSource("system", time.Hour)}
}

// Collect gathers the system context.
func (s *SystemSource) Collect(ctx context.Context) (event.Event, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return event.Event{}, err
	}

	fields := map[string]any{
		"os":               info.OS,
		"platform":         info.Platform,
		"platform_family":  info.PlatformFamily,
		"platform_version": info.PlatformVersion,
		"kernel_version":   info.KernelVersion,
		"arch":             runtime.GOARCH,
		"cpu_logical":      runtime.NumCPU(),
	}
	if info.VirtualizationSystem != "" {
		fields["virtualization"] = info.VirtualizationSystem
	}

	// Processor details are not available on every platform.
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		fields["cpu_model"] = cpus[0].ModelName
		fields["cpu_mhz"] = cpus[0].Mhz
	}
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		fields["cpu_physical"] = physical
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields["memory_total_bytes"] = vm.Total
	}

	return s.newEvent(fields), nil
}
