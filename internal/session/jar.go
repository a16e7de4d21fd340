package session

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
)

// Partition is the cookie store of one endpoint plus operation counters.
type Partition struct {
	Key   string // host:port
	Store Store
	Stats *PartitionStats
}

// PartitionStats counts cookie writes and removals on a partition.
type PartitionStats struct {
	Sets    uint64
	Deletes uint64
	Clears  uint64
}

// Jar is an http.CookieJar partitioned by endpoint (host:port).
//
// net/http/cookiejar follows RFC 6265 and ignores the port, so two servers on
// the same host would overwrite each other's sessionid. Jar never shares a
// cookie between two ports.
type Jar struct {
	mu         sync.RWMutex
	partitions map[string]*Partition
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{partitions: make(map[string]*Partition)}
}

// KeyFor returns the partition key of u: host:port with the scheme's default
// port filled in.
func KeyFor(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Partition returns the partition for key, creating it on first use.
func (j *Jar) Partition(key string) *Partition {
	j.mu.RLock()
	p, ok := j.partitions[key]
	j.mu.RUnlock()
	if ok {
		return p
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if p, ok := j.partitions[key]; ok {
		return p
	}
	p = &Partition{Key: key, Store: NewMemoryStore(), Stats: &PartitionStats{}}
	j.partitions[key] = p
	return p
}

// SetCookies implements http.CookieJar. Cookies with a negative MaxAge or an
// expiry in the past are removed from the partition instead of stored.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	p := j.Partition(KeyFor(u))
	now := time.Now()
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			p.Store.Delete(c.Name)
			atomic.AddUint64(&p.Stats.Deletes, 1)
			continue
		}
		p.Store.Set(c)
		atomic.AddUint64(&p.Stats.Sets, 1)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	p, ok := j.partitions[KeyFor(u)]
	j.mu.RUnlock()
	if !ok {
		return nil
	}
	return p.Store.All()
}

// Has reports whether the partition key holds a cookie named name.
func (j *Jar) Has(key, name string) bool {
	return j.Partition(key).Store.Has(name)
}

// Value returns the value of the named cookie in partition key, or "".
func (j *Jar) Value(key, name string) string {
	c, err := j.Partition(key).Store.Get(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Set stores c in partition key.
func (j *Jar) Set(key string, c *http.Cookie) {
	p := j.Partition(key)
	p.Store.Set(c)
	atomic.AddUint64(&p.Stats.Sets, 1)
}

// Clear drops every cookie of partition key, ending that endpoint's session.
func (j *Jar) Clear(key string) {
	p := j.Partition(key)
	p.Store.Clear()
	atomic.AddUint64(&p.Stats.Clears, 1)
}

// Keys returns the known partition keys, sorted.
func (j *Jar) Keys() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	keys := make([]string, 0, len(j.partitions))
	for k := range j.partitions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PartitionInfo is a read-only view of one partition: the names of the
// cookies it holds (never their values) and its counters.
type PartitionInfo struct {
	Key     string   `json:"key"`
	Cookies []string `json:"cookies"`
	Sets    uint64   `json:"sets"`
	Deletes uint64   `json:"deletes"`
	Clears  uint64   `json:"clears"`
}

// Info returns the view of partition key. It reports false, and creates
// nothing, when the endpoint never stored a cookie.
func (j *Jar) Info(key string) (PartitionInfo, bool) {
	j.mu.RLock()
	p, ok := j.partitions[key]
	j.mu.RUnlock()
	if !ok {
		return PartitionInfo{Key: key, Cookies: []string{}}, false
	}
	return PartitionInfo{
		Key:     p.Key,
		Cookies: p.Store.Names(),
		Sets:    atomic.LoadUint64(&p.Stats.Sets),
		Deletes: atomic.LoadUint64(&p.Stats.Deletes),
		Clears:  atomic.LoadUint64(&p.Stats.Clears),
	}, true
}
