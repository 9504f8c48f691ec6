package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StartupErrorFile is the file WriteStartupError writes into the log
// directory.
const StartupErrorFile = "startup-error.log"

// WriteStartupError records err in dir/startup-error.log, replacing any
// previous content. It is used before the logger exists, so failures are
// ignored.
func WriteStartupError(dir string, err error) {
	if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
		return
	}

	content := fmt.Sprintf("%s %s startup failed\n%v\n",
		time.Now().Format(time.RFC3339), Name, err)
	_ = os.WriteFile(filepath.Join(dir, StartupErrorFile), []byte(content), 0644)
}
