package ncei

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// Cache persists raw extracts on disk, gzipped, so re-runs skip the
// network. Writes go through a temp file and rename, so a crashed run
// never leaves a partial extract behind.
type Cache struct {
	dir string
}

// NewCache creates the cache directory if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Path returns the on-disk location for a unit's raw extract.
func (c *Cache) Path(unit domain.RetrievalUnit) string {
	name := fmt.Sprintf("%s_%04d%02d.dat.gz", unit.StationID, unit.Year, int(unit.Month))
	return filepath.Join(c.dir, name)
}

// Load returns the cached extract for a unit, or ok=false when absent.
// Empty cached files are treated as absent so a truncated write never
// satisfies the idempotent skip.
func (c *Cache) Load(unit domain.RetrievalUnit) (body []byte, ok bool, err error) {
	f, err := os.Open(c.Path(unit))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open cached extract: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cached extract: %w", err)
	}
	defer zr.Close()

	body, err = io.ReadAll(zr)
	if err != nil {
		return nil, false, fmt.Errorf("read cached extract: %w", err)
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}

// Store writes a unit's raw extract atomically.
func (c *Cache) Store(unit domain.RetrievalUnit, body []byte) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return fmt.Errorf("compress extract: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress extract: %w", err)
	}

	dest := c.Path(unit)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write cached extract: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("publish cached extract: %w", err)
	}
	return nil
}
