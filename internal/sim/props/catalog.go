package props

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// KindDef describes one prop kind. Bulk is the capacity cost of a single unit
// in an inventory.
type KindDef struct {
	ID   string `json:"id"`
	Bulk int64  `json:"bulk,omitempty"`
}

// Catalog is the set of known prop kinds, loaded from configs/props.json.
type Catalog struct {
	Defs   map[Kind]KindDef
	Digest string
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []KindDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("props.json: %w", err)
	}

	c := &Catalog{Defs: map[Kind]KindDef{}}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("props.json: empty id")
		}
		if d.Bulk < 0 {
			return nil, fmt.Errorf("props.json: %s: negative bulk", d.ID)
		}
		if _, dup := c.Defs[Kind(d.ID)]; dup {
			return nil, fmt.Errorf("props.json: duplicate id %s", d.ID)
		}
		c.Defs[Kind(d.ID)] = d
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	return c, nil
}

// Bulk returns the per-unit capacity cost for a kind. Unknown kinds cost 1 so
// an incomplete catalog degrades to simple unit counting instead of failing.
func (c *Catalog) Bulk(k Kind) int64 {
	if c == nil {
		return 1
	}
	d, ok := c.Defs[k]
	if !ok || d.Bulk == 0 {
		return 1
	}
	return d.Bulk
}
