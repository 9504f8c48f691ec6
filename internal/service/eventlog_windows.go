//go:build windows
// +build windows

package service

import (
	"fmt"

	"golang.org/x/sys/windows/svc/eventlog"
)

// ReportStartupError writes err to the Windows Event Log under Name so it
// shows up in Event Viewer before logging is configured.
func ReportStartupError(err error) {
	_ = eventlog.InstallAsEventCreate(Name, eventlog.Error|eventlog.Warning|eventlog.Info)

	elog, openErr := eventlog.Open(Name)
	if openErr != nil {
		return
	}
	defer elog.Close()

	elog.Error(1, fmt.Sprintf("%s failed to start: %v", Name, err))
}
