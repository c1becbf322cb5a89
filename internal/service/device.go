package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EnsureDeviceID loads the stable device identifier from path, minting and
// persisting a fresh one on first run. The id is stamped into snapshots for
// diagnostics only; merge identity stays on natural keys.
func EnsureDeviceID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		deviceID := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(deviceID); parseErr == nil {
			return deviceID, nil
		}
		// Unparseable file: mint a new id rather than ship garbage.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	deviceID := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(deviceID+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return deviceID, nil
}
