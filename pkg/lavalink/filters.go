package lavalink

import "sync"

// Filter is an opaque filter payload addressed by tag. The payload is sent
// to the node as-is under the "filters" key; this client never interprets
// it. Preload filters are attached to a track and stripped when the next
// track starts, while non-preload (global) filters stay on the player.
type Filter struct {
	Tag     string
	Preload bool
	Payload map[string]any
}

// NewFilter builds a global filter with the given tag and raw payload.
func NewFilter(tag string, payload map[string]any) *Filter {
	return &Filter{Tag: tag, Payload: payload}
}

// NewPreloadFilter builds a filter meant to be attached to a single track.
func NewPreloadFilter(tag string, payload map[string]any) *Filter {
	return &Filter{Tag: tag, Preload: true, Payload: payload}
}

// FilterSet holds a player's active filters, ordered and unique by tag.
type FilterSet struct {
	mu      sync.Mutex
	filters []*Filter
}

// NewFilterSet creates an empty filter set.
func NewFilterSet() *FilterSet {
	return &FilterSet{}
}

// Add appends a filter. Returns ErrFilterTagAlreadyInUse when the tag is taken.
func (fs *FilterSet) Add(f *Filter) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, existing := range fs.filters {
		if existing.Tag == f.Tag {
			return ErrFilterTagAlreadyInUse
		}
	}

	fs.filters = append(fs.filters, f)
	return nil
}

// Remove drops the filter with the given tag. Returns ErrFilterTagInvalid
// when no such filter is applied.
func (fs *FilterSet) Remove(tag string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for i, f := range fs.filters {
		if f.Tag == tag {
			fs.filters = append(fs.filters[:i], fs.filters[i+1:]...)
			return nil
		}
	}

	return ErrFilterTagInvalid
}

// Reset removes every filter.
func (fs *FilterSet) Reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.filters = nil
}

// Has reports whether a filter with the given tag is applied.
func (fs *FilterSet) Has(tag string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, f := range fs.filters {
		if f.Tag == tag {
			return true
		}
	}
	return false
}

// HasPreload reports whether any applied filter was preloaded from a track.
func (fs *FilterSet) HasPreload() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, f := range fs.filters {
		if f.Preload {
			return true
		}
	}
	return false
}

// HasGlobal reports whether any applied filter is player-global rather than
// preloaded from a track.
func (fs *FilterSet) HasGlobal() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, f := range fs.filters {
		if !f.Preload {
			return true
		}
	}
	return false
}

// PreloadFilters returns the applied filters that came from a track.
func (fs *FilterSet) PreloadFilters() []*Filter {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []*Filter
	for _, f := range fs.filters {
		if f.Preload {
			out = append(out, f)
		}
	}
	return out
}

// Filters returns a copy of the applied filter list in order.
func (fs *FilterSet) Filters() []*Filter {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := make([]*Filter, len(fs.filters))
	copy(out, fs.filters)
	return out
}

// MergedPayload flattens every applied filter payload into the single
// object the node expects under "filters". Later filters win on key clashes.
func (fs *FilterSet) MergedPayload() map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	payload := make(map[string]any)
	for _, f := range fs.filters {
		for k, v := range f.Payload {
			payload[k] = v
		}
	}
	return payload
}
