package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// CSRF rejection reasons, logged and surfaced in 403 bodies.
var (
	ErrCSRFMissing = errors.New("csrf token missing")
	ErrCSRFUnknown = errors.New("csrf token unknown or expired")
	ErrCSRFReused  = errors.New("csrf token already used")
)

type csrfToken struct {
	issuedAt time.Time
	used     bool
}

// CSRFStore issues and verifies one-time tokens for privileged operations
// (version bumps, privileged WebSocket upgrades). 256-bit random values,
// single use, csrfTokenTTL lifetime.
type CSRFStore struct {
	clock Clock

	mu     sync.Mutex
	tokens map[string]*csrfToken
}

// NewCSRFStore returns an empty store.
func NewCSRFStore(clock Clock) *CSRFStore {
	if clock == nil {
		clock = SystemClock
	}
	return &CSRFStore{clock: clock, tokens: make(map[string]*csrfToken)}
}

// Issue mints a fresh token.
func (cs *CSRFStore) Issue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to read token entropy")
	}
	token := hex.EncodeToString(raw)

	cs.mu.Lock()
	cs.tokens[token] = &csrfToken{issuedAt: cs.clock.Now()}
	cs.mu.Unlock()
	return token, nil
}

// Consume verifies a token and marks it used. A token is accepted exactly
// once and only within its TTL.
func (cs *CSRFStore) Consume(token string) error {
	if token == "" {
		return ErrCSRFMissing
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	t, ok := cs.tokens[token]
	if !ok {
		return ErrCSRFUnknown
	}
	if t.used {
		return ErrCSRFReused
	}
	if cs.clock.Now().Sub(t.issuedAt) > csrfTokenTTL {
		delete(cs.tokens, token)
		return ErrCSRFUnknown
	}
	t.used = true
	return nil
}

// Sweep drops expired and used tokens. Called by the server janitor.
func (cs *CSRFStore) Sweep() {
	now := cs.clock.Now()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for token, t := range cs.tokens {
		if t.used || now.Sub(t.issuedAt) > csrfTokenTTL {
			delete(cs.tokens, token)
		}
	}
}

// Len reports resident token count.
func (cs *CSRFStore) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.tokens)
}
