package history

import (
	"context"
	"strings"
	"sync"

	"github.com/hackgods/clinicdesk/internal/gateway"
)

// SuggestLimit caps the entries offered while typing.
const SuggestLimit = 8

type CatalogSource interface {
	Catalog(ctx context.Context, kind gateway.CatalogKind) ([]gateway.CatalogEntry, error)
}

// Suggestions lists catalog entries for a typed term. SelectedID is set when
// the term names an entry exactly.
type Suggestions struct {
	Items      []gateway.CatalogEntry `json:"items"`
	SelectedID int64                  `json:"selected_id,omitempty"`
}

// Catalogs caches the backend lookup tables. They change rarely, so a table
// is fetched once and kept until Reset.
type Catalogs struct {
	src CatalogSource

	mu     sync.RWMutex
	tables map[gateway.CatalogKind][]gateway.CatalogEntry
}

func NewCatalogs(src CatalogSource) *Catalogs {
	return &Catalogs{src: src, tables: map[gateway.CatalogKind][]gateway.CatalogEntry{}}
}

func (c *Catalogs) Table(ctx context.Context, kind gateway.CatalogKind) ([]gateway.CatalogEntry, error) {
	c.mu.RLock()
	t, ok := c.tables[kind]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := c.src.Catalog(ctx, kind)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tables[kind] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Catalogs) Reset() {
	c.mu.Lock()
	c.tables = map[gateway.CatalogKind][]gateway.CatalogEntry{}
	c.mu.Unlock()
}

// Suggest returns the first SuggestLimit entries whose name or CID contains
// term, ignoring case.
func (c *Catalogs) Suggest(ctx context.Context, kind gateway.CatalogKind, term string) (Suggestions, error) {
	t, err := c.Table(ctx, kind)
	if err != nil {
		return Suggestions{}, err
	}
	return suggest(t, term), nil
}

func suggest(table []gateway.CatalogEntry, term string) Suggestions {
	term = strings.TrimSpace(term)
	needle := strings.ToLower(term)
	out := Suggestions{Items: []gateway.CatalogEntry{}}
	for _, e := range table {
		if strings.EqualFold(e.Name, term) && term != "" {
			out.SelectedID = e.ID
		}
		if len(out.Items) < SuggestLimit &&
			(strings.Contains(strings.ToLower(e.Name), needle) || strings.Contains(strings.ToLower(e.CID), needle)) {
			out.Items = append(out.Items, e)
		}
	}
	return out
}
