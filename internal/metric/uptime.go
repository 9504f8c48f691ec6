package metric

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"telemetryagent/internal/event"
)

// UptimeSource reports the boot time and how long the system has been up.
type UptimeSource struct {
	BaseSource
	now func() time.Time
}

func NewUptimeSource() *UptimeSource {
	return &UptimeSource{
		BaseSource: NewBaseSource("uptime", 10*time.Minute),
		now:        time.Now,
	}
}

func (s *UptimeSource) Collect(ctx context.Context) (event.Event, error) {
	bootTimestamp, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return event.Event{}, err
	}

	bootTime := time.Unix(int64(bootTimestamp), 0)
	return s.newEvent(map[string]any{
		"boot_time":      bootTime.UTC().Format(time.RFC3339),
		"boot_time_unix": int64(bootTimestamp),
		"uptime_minutes": round2(s.now().Sub(bootTime).Minutes()),
	}), nil
}
