package game

// Container is shared party storage: a chest, a stash, a cache the
// narrator placed in the world. Items are opaque strings owned by the
// narrator's fiction; the core only tracks presence.
type Container struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items,omitempty"`
}

// Holds reports whether the container currently holds the item
func (c *Container) Holds(item string) bool {
	for _, it := range c.Items {
		if it == item {
			return true
		}
	}
	return false
}

// Take removes one occurrence of the item. Returns false when the item
// is not present.
func (c *Container) Take(item string) bool {
	for i, it := range c.Items {
		if it == item {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the container
func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]string(nil), c.Items...)
	return &out
}
