// Package geo resolves request IPs to a coarse location. Lookups feed
// the audit trail only; a resolver failure or an unknown address never
// blocks a login.
package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// Location is the subset of lookup data the engine records.
type Location struct {
	Country string
	City    string
}

// Resolver maps an IP address to a Location. Implementations return
// a zero Location with nil error for addresses they cannot place.
type Resolver interface {
	Lookup(ip string) (Location, error)
	Close() error
}

// MaxMindResolver resolves against a local MaxMind database file and
// caches results so repeated logins from one address do not re-read
// the database.
type MaxMindResolver struct {
	reader   *geoip2.Reader
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	loc     Location
	expires time.Time
}

// NewMaxMindResolver opens the database at path.
func NewMaxMindResolver(path string, cacheTTL time.Duration) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geo database: %w", err)
	}
	return &MaxMindResolver{
		reader:   reader,
		cacheTTL: cacheTTL,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}, nil
}

func (r *MaxMindResolver) Lookup(ip string) (Location, error) {
	now := r.now()

	r.mu.Lock()
	if entry, ok := r.cache[ip]; ok && now.Before(entry.expires) {
		r.mu.Unlock()
		return entry.loc, nil
	}
	r.mu.Unlock()

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("unparseable address %q", ip)
	}
	record, err := r.reader.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("geo lookup: %w", err)
	}
	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}

	r.mu.Lock()
	r.cache[ip] = cacheEntry{loc: loc, expires: now.Add(r.cacheTTL)}
	r.mu.Unlock()
	return loc, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
