package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	SetProfileKey(ctx context.Context, userID int64, key, value string) error
	GetAllProfileKeys(ctx context.Context, userID int64) (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached, structured access to per-user profiles stored as
// flat key/value pairs.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu     sync.RWMutex
	cached map[int64]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		cached: make(map[int64]cacheEntry),
	}
}

// GetProfile reads a user's profile keys from storage (or cache) and
// assembles a structured Profile. An empty store yields a zero Profile.
func (m *Manager) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	m.mu.RLock()
	if e, ok := m.cached[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.profile, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.cached[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return e.profile, nil
	}

	keys, err := m.store.GetAllProfileKeys(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached[userID] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return p, nil
}

// SetField persists a profile key and invalidates the user's cache entry.
func (m *Manager) SetField(ctx context.Context, userID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(ctx, userID, key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}
	delete(m.cached, userID)
	return nil
}

// MatchThreshold returns the user's configured enqueue threshold, or def
// when unset.
func (m *Manager) MatchThreshold(ctx context.Context, userID int64, def int) int {
	p, err := m.GetProfile(ctx, userID)
	if err != nil || p.MatchThreshold <= 0 {
		return def
	}
	return p.MatchThreshold
}

// PlanID returns the user's subscription plan id, defaulting to "free".
func (m *Manager) PlanID(ctx context.Context, userID int64) string {
	p, err := m.GetProfile(ctx, userID)
	if err != nil || p.Plan == "" {
		return "free"
	}
	return p.Plan
}

// Summary renders a compact description of the candidate for prompts.
func (m *Manager) Summary(ctx context.Context, userID int64) (string, error) {
	p, err := m.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return summarize(p), nil
}

func summarize(p Profile) string {
	var parts []string
	if name := p.FullName(); name != "" {
		parts = append(parts, "Candidate: "+name+".")
	}
	var loc []string
	for _, v := range []string{p.City, p.State, p.Country} {
		if v != "" {
			loc = append(loc, v)
		}
	}
	if len(loc) > 0 {
		parts = append(parts, "Location: "+strings.Join(loc, ", ")+".")
	}
	if p.LinkedIn != "" {
		parts = append(parts, "LinkedIn: "+p.LinkedIn+".")
	}
	if p.GitHub != "" {
		parts = append(parts, "GitHub: "+p.GitHub+".")
	}
	if p.Website != "" {
		parts = append(parts, "Website: "+p.Website+".")
	}
	if len(parts) == 0 {
		return "Candidate profile: not yet configured."
	}
	return strings.Join(parts, " ")
}

// Profile keys use dot-notation. Unknown keys are ignored so the outer
// application can attach its own settings without breaking this subsystem.
func buildProfile(keys map[string]string) Profile {
	var p Profile
	p.FirstName = keys["name.first"]
	p.LastName = keys["name.last"]
	p.Email = keys["contact.email"]
	p.Phone = keys["contact.phone"]
	p.Street = keys["address.street"]
	p.City = keys["address.city"]
	p.State = keys["address.state"]
	p.PostalCode = keys["address.postal_code"]
	p.Country = keys["address.country"]
	p.LinkedIn = keys["links.linkedin"]
	p.GitHub = keys["links.github"]
	p.Website = keys["links.website"]
	p.Plan = keys["plan"]
	if v, ok := keys["match.threshold"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.MatchThreshold = n
		}
	}
	return p
}
