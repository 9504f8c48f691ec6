package metric

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"telemetryagent/internal/event"
)

var pseudoFilesystems = map[string]bool{
	"sysfs": true, "proc": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
	"securityfs": true, "cgroup": true, "cgroup2": true, "pstore": true,
	"debugfs": true, "hugetlbfs": true, "mqueue": true, "fusectl": true,
	"configfs": true, "autofs": true, "binfmt_misc": true, "fuse.gvfsd-fuse": true,
	"overlay": true, "squashfs": true, "cdfs": true, "udf": true,
}

// DiskSource reports space used across mounted filesystems and the
// fullest mount point.
type DiskSource struct {
	BaseSource
}

// NewDiskSource creates a disk usage source.
func NewDiskSource() *DiskSource {
	return &DiskSource{BaseSource: NewBaseSource("disk", 5*time.Minute)}
}

func (s *DiskSource) Collect(ctx context.Context) (event.Event, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return event.Event{}, err
	}

	var (
		count       int
		total, used uint64
		fullest     string
		maxPercent  float64
	)
	for _, p := range partitions {
		if isPseudoFS(p.Fstype) {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		// Empty removable drives report zero bytes.
		if err != nil || usage.Total == 0 {
			continue
		}
		count++
		total += usage.Total
		used += usage.Used
		if fullest == "" || usage.UsedPercent > maxPercent {
			fullest = p.Mountpoint
			maxPercent = usage.UsedPercent
		}
	}

	fields := map[string]any{
		"partitions":  count,
		"total_bytes": total,
		"used_bytes":  used,
	}
	if total > 0 {
		fields["usage_percent"] = round2(float64(used) / float64(total) * 100)
		fields["fullest_mount"] = fullest
		fields["fullest_percent"] = round2(maxPercent)
	}
	return s.newEvent(fields), nil
}

func isPseudoFS(fstype string) bool {
	return pseudoFilesystems[strings.ToLower(fstype)]
}
