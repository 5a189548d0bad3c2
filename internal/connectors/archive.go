package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"bidintake/internal"
)

// Archive keeps the raw bytes of messages that could not be ingested so
// they can be replayed by hand. An empty dir disables it.
type Archive struct {
	dir string
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

func (a *Archive) Enabled() bool {
	return a != nil && a.dir != ""
}

// Store writes msg to <dir>/<sha256>.eml and returns the path. Identical
// payloads share one file.
func (a *Archive) Store(msg internal.FetchedMessage) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}

	rawPath := filepath.Join(a.dir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return "", err
		}
	}
	return rawPath, nil
}
