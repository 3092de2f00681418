package flow

import (
	"context"
	"sync"
)

// Token identifies one generation of work for a key. Creating a newer token
// for the same key aborts this one. The token carries a derived context so
// abort propagates into any fetch that accepts it; consumers must still
// check Aborted before acting on a result and discard it silently when the
// token has been superseded.
type Token struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the token's generation number, unique per registry.
func (t *Token) ID() uint64 { return t.id }

// Context returns the context cancelled when the token is aborted.
func (t *Token) Context() context.Context { return t.ctx }

// Aborted reports whether the token has been aborted or superseded.
func (t *Token) Aborted() bool { return t.ctx.Err() != nil }

// CancelRegistry manages cancellation tokens keyed by request identity,
// letting a newer request supersede the in-flight one for the same key.
type CancelRegistry struct {
	mu     sync.Mutex
	tokens map[string]*Token
	nextID uint64
}

// NewCancelRegistry creates an empty CancelRegistry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{tokens: make(map[string]*Token)}
}

// Create issues a fresh token for key derived from parent, aborting any
// previous token for that key.
func (r *CancelRegistry) Create(parent context.Context, key string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.tokens[key]; ok {
		prev.cancel()
	}

	r.nextID++
	ctx, cancel := context.WithCancel(parent)
	tok := &Token{id: r.nextID, ctx: ctx, cancel: cancel}
	r.tokens[key] = tok
	return tok
}

// Get returns the current token for key, or nil.
func (r *CancelRegistry) Get(key string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[key]
}

// Abort cancels the current token for key, if any.
func (r *CancelRegistry) Abort(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tok, ok := r.tokens[key]; ok {
		tok.cancel()
		delete(r.tokens, key)
	}
}

// AbortAll cancels every registered token.
func (r *CancelRegistry) AbortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, tok := range r.tokens {
		tok.cancel()
		delete(r.tokens, key)
	}
}
