// krabbel/models/formtokens.go
package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FormTokens hands out one-time tokens for mutating forms so a resubmitted
// form is recognised and dropped.
type FormTokens struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]struct{}
}

func NewFormTokens(ttl time.Duration) *FormTokens {
	return &FormTokens{ttl: ttl, tokens: make(map[string]struct{})}
}

// Issue creates a token that expires after the store's TTL.
func (ft *FormTokens) Issue() string {
	token := uuid.New().String()

	ft.mu.Lock()
	ft.tokens[token] = struct{}{}
	ft.mu.Unlock()

	time.AfterFunc(ft.ttl, func() {
		ft.mu.Lock()
		delete(ft.tokens, token)
		ft.mu.Unlock()
	})
	return token
}

// Consume removes the token and reports whether it was live.
func (ft *FormTokens) Consume(token string) bool {
	if token == "" {
		return false
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()

	_, ok := ft.tokens[token]
	delete(ft.tokens, token)
	return ok
}
