package metric

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"telemetryagent/internal/event"
)

var virtualInterfacePrefixes = []string{
	"veth", "docker", "br-", "virbr", "vbox", "vmnet",
	"flannel", "cni", "calico", "weave",
}

// NetworkSource reports traffic summed over physical interfaces, with
// throughput since the previous sample.
type NetworkSource struct {
	BaseSource

	mu       sync.Mutex
	lastSent uint64
	lastRecv uint64
	lastAt   time.Time
}

// NewNetworkSource creates a network traffic source.
func NewNetworkSource() *NetworkSource {
	return &NetworkSource{BaseSource: NewBaseSource("network", time.Minute)}
}

func (s *NetworkSource) Collect(ctx context.Context) (event.Event, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return event.Event{}, err
	}

	var sent, recv, errs, drops uint64
	var count int
	for _, c := range counters {
		if isVirtualInterface(c.Name) {
			continue
		}
		count++
		sent += c.BytesSent
		recv += c.BytesRecv
		errs += c.Errin + c.Errout
		drops += c.Dropin + c.Dropout
	}

	fields := map[string]any{
		"interfaces": count,
		"bytes_sent": sent,
		"bytes_recv": recv,
		"errors":     errs,
		"drops":      drops,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.lastAt.IsZero() {
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			// Counters that went backwards wrapped or were reset.
			if sent >= s.lastSent {
				fields["bytes_sent_rate"] = round2(float64(sent-s.lastSent) / elapsed)
			}
			if recv >= s.lastRecv {
				fields["bytes_recv_rate"] = round2(float64(recv-s.lastRecv) / elapsed)
			}
		}
	}
	s.lastSent, s.lastRecv, s.lastAt = sent, recv, now

	return s.newEvent(fields), nil
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	if name == "lo" || name == "loopback" {
		return true
	}
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
