package monitor

import (
	"sort"
	"sync"

	"github.com/momentum-mod/livestreams/internal/domain"
)

// Policy decides whether a live broadcast may be announced. It never does I/O.
type Policy struct {
	mu   sync.RWMutex
	hard map[string]struct{}
	soft *SoftBans
}

func NewPolicy(hardBans []string, soft *SoftBans) *Policy {
	p := &Policy{soft: soft}
	p.SetHardBans(hardBans)
	return p
}

// SetHardBans replaces the owner deny list. A nil or empty list bans nobody.
func (p *Policy) SetHardBans(ownerIDs []string) {
	hard := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			hard[id] = struct{}{}
		}
	}

	p.mu.Lock()
	p.hard = hard
	p.mu.Unlock()
}

func (p *Policy) HardBans() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.hard))
	for id := range p.hard {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Policy) IsHardBanned(b *domain.Broadcast) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.hard[b.UserID]
	return ok
}

func (p *Policy) IsSoftBanned(b *domain.Broadcast) bool {
	if p.soft == nil {
		return false
	}
	return p.soft.Has(b.ID)
}

// Allowed is true when b is neither hard- nor soft-banned.
func (p *Policy) Allowed(b *domain.Broadcast) bool {
	return !p.IsHardBanned(b) && !p.IsSoftBanned(b)
}
