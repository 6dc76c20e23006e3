package scratchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// DefaultMaxInvestigations bounds a MemoryStore built without an explicit cap.
const DefaultMaxInvestigations = 1024

// MemoryStore keeps investigation sections in process memory. Once it holds
// maxPads investigations, creating another evicts the least recently written one.
type MemoryStore struct {
	mu      sync.RWMutex
	pads    map[string]*memoryEntry
	maxPads int
	clock   uint64
}

type memoryEntry struct {
	sections  map[Section]json.RawMessage
	lastWrite uint64
}

// NewMemoryStore constructs an empty store capped at maxInvestigations
// investigations. Non-positive values use DefaultMaxInvestigations.
func NewMemoryStore(maxInvestigations ...int) *MemoryStore {
	limit := DefaultMaxInvestigations
	if len(maxInvestigations) > 0 && maxInvestigations[0] > 0 {
		limit = maxInvestigations[0]
	}
	return &MemoryStore{pads: make(map[string]*memoryEntry), maxPads: limit}
}

// Pad returns the scratchpad for an investigation. It is created lazily on first write.
func (s *MemoryStore) Pad(investigationID string) Scratchpad {
	return &memoryPad{store: s, id: investigationID}
}

// Len reports how many investigations are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pads)
}

// evictOldest drops the least recently written investigation. Callers hold mu.
func (s *MemoryStore) evictOldest() {
	var (
		oldestID string
		oldest   uint64
		found    bool
	)
	for id, entry := range s.pads {
		if !found || entry.lastWrite < oldest {
			oldestID, oldest, found = id, entry.lastWrite, true
		}
	}
	if found {
		delete(s.pads, oldestID)
	}
}

type memoryPad struct {
	store *MemoryStore
	id    string
}

func (p *memoryPad) ReadSection(ctx context.Context, section Section) (json.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()

	entry, ok := p.store.pads[p.id]
	if !ok {
		return nil, false, nil
	}
	payload, ok := entry.sections[section]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(payload), true, nil
}

func (p *memoryPad) WriteSection(ctx context.Context, section Section, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !section.Valid() {
		return fmt.Errorf("unknown section %q", section)
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	entry, ok := p.store.pads[p.id]
	if !ok {
		if len(p.store.pads) >= p.store.maxPads {
			p.store.evictOldest()
		}
		entry = &memoryEntry{sections: make(map[Section]json.RawMessage)}
		p.store.pads[p.id] = entry
	}
	p.store.clock++
	entry.lastWrite = p.store.clock
	entry.sections[section] = slices.Clone(payload)
	return nil
}

func (p *memoryPad) DeleteSection(ctx context.Context, section Section) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	if entry, ok := p.store.pads[p.id]; ok {
		delete(entry.sections, section)
	}
	return nil
}
