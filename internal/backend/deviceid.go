package backend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"crushstore/internal/placement"
)

// LoadOrCreateDeviceId returns the device id persisted at path, creating
// one the first time a daemon starts against a given data directory.
//
// The id is written via a temp file plus rename so a crash mid-write
// never leaves a half-written id file behind: readers only ever see the
// old file or the fully-written new one, never a partial one.
func LoadOrCreateDeviceId(path string) (placement.DeviceId, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return parseDeviceId(raw)
	}
	if !os.IsNotExist(err) {
		return placement.DeviceId{}, fmt.Errorf("backend: read device id: %w", err)
	}

	var id placement.DeviceId
	if _, err := rand.Read(id[:]); err != nil {
		return placement.DeviceId{}, fmt.Errorf("backend: generate device id: %w", err)
	}

	if err := writeDeviceIdAtomic(path, id); err != nil {
		return placement.DeviceId{}, err
	}
	return id, nil
}

func parseDeviceId(raw []byte) (placement.DeviceId, error) {
	decoded, err := hex.DecodeString(string(trimNewline(raw)))
	if err != nil {
		return placement.DeviceId{}, fmt.Errorf("backend: malformed device id file: %w", err)
	}
	var id placement.DeviceId
	if len(decoded) != len(id) {
		return placement.DeviceId{}, fmt.Errorf("backend: device id file has %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

func writeDeviceIdAtomic(path string, id placement.DeviceId) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(hex.EncodeToString(id[:])+"\n"), 0o600); err != nil {
		return fmt.Errorf("backend: write device id: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("backend: commit device id: %w", err)
	}
	return nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
