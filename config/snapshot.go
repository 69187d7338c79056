package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/warp/booking-engine/generic"
)

// =============================================================================
// SNAPSHOT - Immutable, validated view of Config
// =============================================================================

// Snapshot is read-only after NewSnapshot returns. Share it freely.
type Snapshot struct {
	Config
	Location *time.Location
	LoadedAt time.Time

	groups map[generic.ChatID]GroupConfig
	owners map[string]struct{}
}

// NewSnapshot validates c and precomputes lookups.
func NewSnapshot(c Config) (*Snapshot, error) {
	loc, err := generic.LoadLocation(c.Timezone)
	if err != nil {
		return nil, err
	}
	for _, hhmm := range []string{c.Schedule.DailyReport, c.Schedule.MonthlyReport, c.Schedule.Cleanup} {
		if hhmm == "" {
			continue
		}
		if _, _, err := ParseClock(hhmm); err != nil {
			return nil, err
		}
	}

	s := &Snapshot{
		Config:   c,
		Location: loc,
		LoadedAt: time.Now(),
		groups:   make(map[generic.ChatID]GroupConfig),
		owners:   make(map[string]struct{}),
	}
	for _, g := range c.Groups {
		if g.ChatID == "" {
			return nil, fmt.Errorf("group %q has no chat_id", g.Apartment)
		}
		if g.Enabled {
			s.groups[generic.ChatID(g.ChatID)] = g
		}
	}
	for _, o := range c.Owners {
		if n := NormalizePhone(o); n != "" {
			s.owners[n] = struct{}{}
		}
	}
	return s, nil
}

// IsAllowed reports whether a group chat is configured and enabled.
func (s *Snapshot) IsAllowed(chatID generic.ChatID) bool {
	_, ok := s.groups[chatID]
	return ok
}

// ApartmentFor returns the apartment bound to a group chat.
func (s *Snapshot) ApartmentFor(chatID generic.ChatID) (string, bool) {
	g, ok := s.groups[chatID]
	return g.Apartment, ok
}

// IsOwner compares phone numbers after normalization.
func (s *Snapshot) IsOwner(senderID string) bool {
	_, ok := s.owners[NormalizePhone(senderID)]
	return ok
}

// OwnerChats returns private chat ids for every owner.
func (s *Snapshot) OwnerChats() []generic.ChatID {
	out := make([]generic.ChatID, 0, len(s.Owners))
	for _, o := range s.Owners {
		if n := NormalizePhone(o); n != "" {
			out = append(out, generic.ChatID(n+"@c.us"))
		}
	}
	return out
}

// EnabledGroups returns the enabled groups in configuration order.
func (s *Snapshot) EnabledGroups() []GroupConfig {
	var out []GroupConfig
	for _, g := range s.Groups {
		if g.Enabled {
			out = append(out, g)
		}
	}
	return out
}

// ApartmentNames returns every known apartment: the priority order first, then
// group apartments not in it, in configuration order.
func (s *Snapshot) ApartmentNames() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		key := strings.ToUpper(strings.TrimSpace(a))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, a)
	}
	for _, a := range s.Config.Apartments.Order {
		add(a)
	}
	for _, g := range s.Groups {
		add(g.Apartment)
	}
	return out
}

// =============================================================================
// HOLDER - Atomic swap on reload
// =============================================================================

// Holder publishes the current Snapshot. Readers call Current per operation
// and keep the returned pointer for the whole operation.
type Holder struct {
	current atomic.Pointer[Snapshot]
	load    func() (*Snapshot, error)
}

func NewHolder(s *Snapshot, load func() (*Snapshot, error)) *Holder {
	h := &Holder{load: load}
	h.current.Store(s)
	return h
}

func (h *Holder) Current() *Snapshot { return h.current.Load() }

// Swap replaces the snapshot and returns the previous one.
func (h *Holder) Swap(s *Snapshot) *Snapshot { return h.current.Swap(s) }

// Reload loads a fresh snapshot. On failure the current one stays in place.
func (h *Holder) Reload() (*Snapshot, error) {
	if h.load == nil {
		return h.Current(), nil
	}
	s, err := h.load()
	if err != nil {
		return h.Current(), err
	}
	h.current.Store(s)
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// NormalizePhone keeps digits only, drops a gateway suffix and rewrites a
// leading local 0 to the 62 country code.
func NormalizePhone(s string) string {
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if strings.HasPrefix(n, "0") {
		n = "62" + n[1:]
	}
	return n
}

// ParseClock parses "HH:MM".
func ParseClock(hhmm string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", hhmm, err)
	}
	return t.Hour(), t.Minute(), nil
}
