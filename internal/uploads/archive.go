package uploads

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive keeps a copy of every stored workbook on local disk, laid out as
// <dir>/YYYY/MM/DD/<kind>-<checksum>.xlsx.
type Archive struct {
	dir string
}

// NewArchive returns nil when dir is empty, which disables archiving.
func NewArchive(dir string) *Archive {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Archive{dir: dir}
}

// Save writes data atomically and returns its path.
func (a *Archive) Save(kind FileKind, checksum string, data []byte, at time.Time) (string, error) {
	if a == nil {
		return "", nil
	}
	at = at.UTC()
	folder := filepath.Join(a.dir, at.Format("2006"), at.Format("01"), at.Format("02"))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("uploads: archive dir: %w", err)
	}
	path := filepath.Join(folder, strings.ToLower(string(kind))+"-"+checksum+".xlsx")
	tmp, err := os.CreateTemp(folder, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("uploads: archive temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("uploads: archive write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("uploads: archive close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("uploads: archive rename: %w", err)
	}
	return path, nil
}
