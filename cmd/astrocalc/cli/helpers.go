package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sivanadi/AstroCalc/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// ASTROCALC_DATA_DIR env var, or ~/.astrocalc as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("ASTROCALC_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.astrocalc"
}

// openStore opens the SQLite store under the resolved data directory.
func openStore() (*store.Store, error) {
	return store.New(resolveDataDir())
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "astrocalc.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "astrocalc.log")
}
