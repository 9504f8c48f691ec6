package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readStartupError(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, StartupErrorFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", StartupErrorFile, err)
	}
	return string(data)
}

func TestWriteStartupError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log", "TelemetryAgent")

	WriteStartupError(dir, errors.New("collector URL malformed: invalid port 0"))

	content := readStartupError(t, dir)
	if !strings.Contains(content, "invalid port 0") {
		t.Errorf("expected error message, got:\n%s", content)
	}
	if !strings.Contains(content, "TelemetryAgent startup failed") {
		t.Errorf("expected service name, got:\n%s", content)
	}
}

func TestWriteStartupError_KeepsOnlyLatest(t *testing.T) {
	dir := t.TempDir()

	WriteStartupError(dir, errors.New("first"))
	WriteStartupError(dir, errors.New("second"))

	content := readStartupError(t, dir)
	if strings.Contains(content, "first") || !strings.Contains(content, "second") {
		t.Errorf("expected only the latest error, got:\n%s", content)
	}
}

func TestWriteStartupError_NilError(t *testing.T) {
	dir := t.TempDir()
	WriteStartupError(dir, nil)
	readStartupError(t, dir)
}
