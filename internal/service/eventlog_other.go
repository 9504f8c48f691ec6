//go:build !windows
// +build !windows

package service

// ReportStartupError is a no-op outside Windows; WriteStartupError covers it.
func ReportStartupError(err error) {}
