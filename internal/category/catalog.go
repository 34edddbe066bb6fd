// Package category defines the fixed catalog of news categories.
//
// The catalog is static configuration: an ordered key -> label mapping.
// "all" is a reserved meta key meaning "every concrete category"; it is
// derived per subscriber, never configured as a concrete entry.
package category

import (
	"fmt"
	"strings"
)

// All is the reserved meta-category key.
const All = "all"

type Entry struct {
	Key   string
	Label string
}

// Catalog is an ordered list of concrete categories plus the implicit
// "all" entry. The zero value is unusable; build one with New.
type Catalog struct {
	entries []Entry
	labels  map[string]string
}

// Default mirrors the original deployment's category set.
func Default() *Catalog {
	c, _ := New([]Entry{
		{Key: "power", Label: "⚡ Отключения электричества"},
		{Key: "water", Label: "🚰 Отключения воды"},
		{Key: "roads", Label: "🚧 Дороги и транспорт"},
		{Key: "city", Label: "🏛 Городские новости"},
	})
	return c
}

func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("category catalog is empty")
	}
	c := &Catalog{labels: make(map[string]string, len(entries)+1)}
	for _, e := range entries {
		key := strings.TrimSpace(strings.ToLower(e.Key))
		if key == "" {
			return nil, fmt.Errorf("category key is empty")
		}
		if key == All {
			return nil, fmt.Errorf("category key %q is reserved", All)
		}
		if _, dup := c.labels[key]; dup {
			return nil, fmt.Errorf("duplicate category key %q", key)
		}
		label := strings.TrimSpace(e.Label)
		if label == "" {
			label = key
		}
		c.entries = append(c.entries, Entry{Key: key, Label: label})
		c.labels[key] = label
	}
	c.labels[All] = "🔔 Все новости"
	return c, nil
}

// Concrete returns the ordered concrete keys (everything except "all").
func (c *Catalog) Concrete() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Key)
	}
	return out
}

// Entries returns the ordered concrete entries.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Has reports whether key is a concrete catalog key or "all".
func (c *Catalog) Has(key string) bool {
	_, ok := c.labels[key]
	return ok
}

// Label returns the human-readable label for key (concrete or "all").
func (c *Catalog) Label(key string) string {
	if l, ok := c.labels[key]; ok {
		return l
	}
	return key
}

func (c *Catalog) Len() int { return len(c.entries) }
