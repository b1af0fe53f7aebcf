package device

import "sort"

// Whitelist is an immutable set of approved identifiers. It is built once
// and shared by pointer; a nil *Whitelist approves nothing.
type Whitelist struct {
	ids map[ID]struct{}
}

// NewWhitelist builds a whitelist from ids. Duplicates are ignored.
func NewWhitelist(ids ...ID) *Whitelist {
	w := &Whitelist{ids: make(map[ID]struct{}, len(ids))}
	for _, id := range ids {
		w.ids[id] = struct{}{}
	}
	return w
}

// Contains reports whether id is approved.
func (w *Whitelist) Contains(id ID) bool {
	if w == nil {
		return false
	}
	_, ok := w.ids[id]
	return ok
}

// Len returns the number of approved identifiers.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.ids)
}

// IDs returns the approved identifiers in canonical order.
func (w *Whitelist) IDs() []ID {
	if w == nil {
		return nil
	}
	out := make([]ID, 0, len(w.ids))
	for id := range w.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vendor != out[j].Vendor {
			return out[i].Vendor < out[j].Vendor
		}
		return out[i].Product < out[j].Product
	})
	return out
}
