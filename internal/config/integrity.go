package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest pins the approved config content. Written by
// `usher config lock`, verified by `usher config check`.
type ChecksumManifest struct {
	Version     int    `yaml:"version"`
	GeneratedAt string `yaml:"generated_at"`
	Hash        string `yaml:"hash"`
}

// ChecksumPath returns the manifest path for a config file.
func ChecksumPath(configPath string) string {
	return configPath + ".checksums"
}

// ComputeHash computes the BLAKE3 hash of the file at path.
func ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Lock writes a checksum manifest authorizing the current config content.
func Lock(configPath string) error {
	hash, err := ComputeHash(configPath)
	if err != nil {
		return err
	}
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hash:        hash,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest is what check trusts.
	if err := os.WriteFile(ChecksumPath(configPath), data, 0o600); err != nil {
		return fmt.Errorf("write checksums: %w", err)
	}
	return nil
}

// Verify checks the config file against its manifest. A missing manifest
// is reported as a warning string, not an error; a hash mismatch is an
// error.
func Verify(configPath string) (warning string, err error) {
	data, err := os.ReadFile(ChecksumPath(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no checksum manifest at %s; run 'usher config lock' to enable integrity verification", ChecksumPath(configPath)), nil
		}
		return "", fmt.Errorf("read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return "", fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	actual, err := ComputeHash(configPath)
	if err != nil {
		return "", err
	}
	if actual != manifest.Hash {
		return "", fmt.Errorf("config hash mismatch for %s (expected %s, got %s); if you edited it intentionally, run 'usher config lock'",
			configPath, manifest.Hash, actual)
	}
	return "", nil
}
