package monitor

import (
	"sort"
	"sync"
)

// SoftBans holds broadcast ids whose announcement was removed by a moderator.
// Membership is per broadcast session, never per owner.
type SoftBans struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewSoftBans() *SoftBans {
	return &SoftBans{ids: map[string]struct{}{}}
}

// Add reports whether id was newly added.
func (sb *SoftBans) Add(id string) bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if _, ok := sb.ids[id]; ok {
		return false
	}
	sb.ids[id] = struct{}{}
	return true
}

// Remove reports whether id was present.
func (sb *SoftBans) Remove(id string) bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if _, ok := sb.ids[id]; !ok {
		return false
	}
	delete(sb.ids, id)
	return true
}

func (sb *SoftBans) Has(id string) bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	_, ok := sb.ids[id]
	return ok
}

func (sb *SoftBans) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	return len(sb.ids)
}

func (sb *SoftBans) List() []string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	out := make([]string, 0, len(sb.ids))
	for id := range sb.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
