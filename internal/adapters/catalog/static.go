// Package catalog serves the read-only skills catalog.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/opportune/internal/app"
)

// Static is an immutable in-process skills catalog.
type Static struct {
	skills map[string]app.CatalogSkill
}

// NewStatic builds a catalog from skills. Duplicate ids are rejected.
func NewStatic(skills []app.CatalogSkill) (*Static, error) {
	out := &Static{skills: make(map[string]app.CatalogSkill, len(skills))}
	for i, s := range skills {
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)
		if s.ID == "" {
			return nil, fmt.Errorf("skills[%d].id is required", i)
		}
		if _, ok := out.skills[s.ID]; ok {
			return nil, fmt.Errorf("duplicate skill id %q", s.ID)
		}
		out.skills[s.ID] = s
	}
	return out, nil
}

// LookupSkill resolves one skill id.
func (c *Static) LookupSkill(_ context.Context, id string) (app.CatalogSkill, error) {
	s, ok := c.skills[strings.TrimSpace(id)]
	if !ok {
		return app.CatalogSkill{}, app.ErrNotFound
	}
	return s, nil
}

// Skills returns every entry ordered by id.
func (c *Static) Skills() []app.CatalogSkill {
	out := make([]app.CatalogSkill, 0, len(c.skills))
	for _, s := range c.skills {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b app.CatalogSkill) int { return strings.Compare(a.ID, b.ID) })
	return out
}
