package props

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "props.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write props.json: %v", err)
	}
	return p
}

func TestLoad_BulkDefaultsAndDigest(t *testing.T) {
	p := writeCatalog(t, `[{"id":"PLANK","bulk":2},{"id":"NAIL"}]`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Digest == "" {
		t.Fatalf("expected non-empty digest")
	}
	if got := c.Bulk("PLANK"); got != 2 {
		t.Fatalf("Bulk(PLANK)=%d want 2", got)
	}
	if got := c.Bulk("NAIL"); got != 1 {
		t.Fatalf("Bulk(NAIL)=%d want 1 (zero bulk defaults to 1)", got)
	}
	if got := c.Bulk("UNKNOWN"); got != 1 {
		t.Fatalf("Bulk(UNKNOWN)=%d want 1", got)
	}
}

func TestLoad_RejectsBadDefs(t *testing.T) {
	if _, err := Load(writeCatalog(t, `[{"id":""}]`)); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := Load(writeCatalog(t, `[{"id":"A"},{"id":"A"}]`)); err == nil {
		t.Fatalf("expected error for duplicate id")
	}
	if _, err := Load(writeCatalog(t, `[{"id":"A","bulk":-1}]`)); err == nil {
		t.Fatalf("expected error for negative bulk")
	}
}

func TestNilCatalogBulk(t *testing.T) {
	var c *Catalog
	if got := c.Bulk("X"); got != 1 {
		t.Fatalf("nil catalog Bulk=%d want 1", got)
	}
}
