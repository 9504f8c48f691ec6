package metric

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"telemetryagent/internal/event"
)

// CPUSource reports overall processor usage.
type CPUSource struct {
	BaseSource
	sample time.Duration
}

// NewCPUSource creates a CPU usage source.
func NewCPUSource() *CPUSource {
	return &CPUSource{
		BaseSource: NewBaseSource("cpu", time.Minute),
		sample:     200 * time.Millisecond,
	}
}

// Collect measures usage over a short sampling window and adds the
// user/system/idle split from the cumulative CPU times.
func (s *CPUSource) Collect(ctx context.Context) (event.Event, error) {
	percentages, err := cpu.PercentWithContext(ctx, s.sample, false)
	if err != nil {
		return event.Event{}, err
	}

	fields := map[string]any{}
	if len(percentages) > 0 {
		fields["usage_percent"] = round2(percentages[0])
	}

	times, err := cpu.TimesWithContext(ctx, false)
	if err == nil && len(times) > 0 {
		t := times[0]
		total := t.User + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal + t.Guest
		if total > 0 {
			fields["user_percent"] = round2(t.User / total * 100)
			fields["system_percent"] = round2(t.System / total * 100)
			fields["idle_percent"] = round2(t.Idle / total * 100)
			fields["iowait_percent"] = round2(t.Iowait / total * 100)
		}
	}

	return s.newEvent(fields), nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
