package game

import (
	apperr "github.com/loreforge/loreforge/internal/errors"
)

// ResourcePool is a bounded counter such as hit points or per-level
// spell slots. Invariant: 0 <= Current <= Max.
type ResourcePool struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Valid reports whether the pool respects its bounds
func (p ResourcePool) Valid() bool {
	return p.Current >= 0 && p.Current <= p.Max
}

// Character is a persistent sheet owned by exactly one participant
// across sessions, keyed by name. The core treats Sheet as an opaque
// document; only hit points, pools and flags are reasoned about
// structurally.
type Character struct {
	Name      string                  `json:"name"`
	OwnerID   string                  `json:"owner_id"`
	HitPoints ResourcePool            `json:"hit_points"`
	Pools     map[string]ResourcePool `json:"pools,omitempty"`     // e.g. "spell_slots_1"
	Flags     map[string]bool         `json:"flags,omitempty"`     // status conditions
	Inventory []string                `json:"inventory,omitempty"` // items retrieved from containers
	Sheet     map[string]any          `json:"sheet,omitempty"`     // opaque narrator-owned document
}

// Validate checks the structural invariants of the sheet
func (c *Character) Validate() error {
	if c.Name == "" {
		return apperr.Validation("character name is required")
	}
	if !c.HitPoints.Valid() {
		return apperr.Validationf("character %q hit points out of range: %d/%d",
			c.Name, c.HitPoints.Current, c.HitPoints.Max)
	}
	for name, pool := range c.Pools {
		if !pool.Valid() {
			return apperr.Validationf("character %q pool %q out of range: %d/%d",
				c.Name, name, pool.Current, pool.Max).
				WithMeta("character", c.Name).
				WithMeta("pool", name)
		}
	}
	return nil
}

// Clone returns a deep copy of the character
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	out := *c
	if c.Pools != nil {
		out.Pools = make(map[string]ResourcePool, len(c.Pools))
		for k, v := range c.Pools {
			out.Pools[k] = v
		}
	}
	if c.Flags != nil {
		out.Flags = make(map[string]bool, len(c.Flags))
		for k, v := range c.Flags {
			out.Flags[k] = v
		}
	}
	out.Inventory = append([]string(nil), c.Inventory...)
	if c.Sheet != nil {
		out.Sheet = cloneSheet(c.Sheet)
	}
	return &out
}

// cloneSheet deep-copies the opaque document for JSON-shaped values
func cloneSheet(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneSheet(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
