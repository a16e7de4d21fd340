package session

import (
	"errors"
	"net/http"
	"sync"

	"golang.org/x/exp/slices"
)

// Cookie names issued by the admin UI.
const (
	SessionCookie = "sessionid" // set by the login page on every visit
	AuthCookie    = "authcred"  // set by a successful credential POST
)

// ErrCookieNotFound is returned when a cookie isn't present in a store
var ErrCookieNotFound = errors.New("cookie not found")

// Store defines a named-cookie store for a single endpoint.
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get returns the cookie with the given name
	// Returns ErrCookieNotFound if it isn't set
	Get(name string) (*http.Cookie, error)

	// Set stores c under c.Name, replacing any previous value
	Set(c *http.Cookie)

	// Has reports whether a cookie with the given name is set
	Has(name string) bool

	// Delete removes one cookie
	// No-op if the cookie isn't set
	Delete(name string)

	// Clear removes every cookie
	Clear()

	// Names returns the stored cookie names in sorted order
	Names() []string

	// All returns copies of every stored cookie, ordered by name
	All() []*http.Cookie
}

// MemoryStore implements Store with an in-memory map
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu      sync.RWMutex            // Protects concurrent access
	cookies map[string]*http.Cookie // Cookie name -> cookie
}

// NewMemoryStore creates a new, empty cookie store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cookies: make(map[string]*http.Cookie),
	}
}

// Get returns a copy of the named cookie
func (m *MemoryStore) Get(name string) (*http.Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cookies[name]
	if !ok {
		return nil, ErrCookieNotFound
	}
	return copyCookie(c), nil
}

// Set stores a copy of c
// Only the name and value are kept; the admin UI scopes nothing else we rely on
func (m *MemoryStore) Set(c *http.Cookie) {
	if c == nil || c.Name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cookies[c.Name] = &http.Cookie{Name: c.Name, Value: c.Value}
}

// Has reports whether the named cookie is set
func (m *MemoryStore) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.cookies[name]
	return ok
}

// Delete removes the named cookie (idempotent)
func (m *MemoryStore) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cookies, name)
}

// Clear drops every cookie in the store
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cookies = make(map[string]*http.Cookie)
}

// Names returns the cookie names, sorted
func (m *MemoryStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.cookies))
	for name := range m.cookies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns copies of the cookies, sorted by name
func (m *MemoryStore) All() []*http.Cookie {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*http.Cookie, 0, len(m.cookies))
	for _, c := range m.cookies {
		out = append(out, copyCookie(c))
	}
	slices.SortFunc(out, func(a, b *http.Cookie) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

func copyCookie(c *http.Cookie) *http.Cookie {
	return &http.Cookie{Name: c.Name, Value: c.Value}
}
