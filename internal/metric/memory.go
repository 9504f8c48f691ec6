package metric

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"telemetryagent/internal/event"
)

// MemorySource reports physical and swap memory usage.
type MemorySource struct {
	BaseSource
}

// NewMemorySource creates a memory usage source.
func NewMemorySource() *MemorySource {
	return &MemorySource{BaseSource: NewBaseSource("memory", time.Minute)}
}

func (s *MemorySource) Collect(ctx context.Context) (event.Event, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return event.Event{}, err
	}

	fields := map[string]any{
		"total_bytes":     vm.Total,
		"used_bytes":      vm.Used,
		"available_bytes": vm.Available,
		"usage_percent":   round2(vm.UsedPercent),
	}

	// Swap may not be available on all systems.
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil && swap.Total > 0 {
		fields["swap_total_bytes"] = swap.Total
		fields["swap_used_bytes"] = swap.Used
		fields["swap_percent"] = round2(swap.UsedPercent)
	}

	return s.newEvent(fields), nil
}
