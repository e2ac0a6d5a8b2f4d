package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type memEntry struct {
	fails        int
	first        time.Time
	blockedUntil time.Time
}

// Memory keeps counters in process; entries expire after Window+BlockFor.
// It suits single-instance deployments and tests.
type Memory struct {
	mu  sync.Mutex
	c   *cache.Cache
	pol Policy
	now func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(pol Policy) *Memory {
	ttl := pol.Window + pol.BlockFor
	return &Memory{c: cache.New(ttl, 2*ttl), pol: pol, now: time.Now}
}

func memKey(email string, ipHash []byte) string { return email + "|" + hex.EncodeToString(ipHash) }

func (m *Memory) entry(key string) *memEntry {
	if v, ok := m.c.Get(key); ok {
		return v.(*memEntry)
	}
	return nil
}

// Allow reports whether login is currently allowed.
func (m *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(memKey(email, ipHash))
	if e == nil {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the counters.
func (m *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	m.c.Delete(memKey(email, ipHash))
	return nil
}

// Failure counts a failed attempt.
func (m *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(email, ipHash)
	now := m.now()
	e := m.entry(key)
	if e == nil || now.Sub(e.first) > m.pol.Window {
		e = &memEntry{first: now}
	}
	e.fails++
	blocked := e.fails >= m.pol.MaxFails
	if blocked {
		e.blockedUntil = now.Add(m.pol.BlockFor)
	}
	m.c.SetDefault(key, e)
	if blocked {
		return true, m.pol.BlockFor, nil
	}
	return false, 0, nil
}
