// Package request issues monotonic tokens so that a manager can discard
// responses to requests that a newer request has superseded.
package request

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Token identifies one issued request.
type Token uint64

// Sequence hands out increasing tokens. The zero value is ready to use.
type Sequence struct {
	last atomic.Uint64
}

// Next issues a token that supersedes every token issued before it.
func (s *Sequence) Next() Token {
	return Token(s.last.Add(1))
}

// Current reports whether t is still the most recently issued token.
func (s *Sequence) Current(t Token) bool {
	return s.last.Load() == uint64(t)
}

// Invalidate supersedes every outstanding token without issuing a new one
// to a caller, e.g. when local state is replaced by other means.
func (s *Sequence) Invalidate() {
	s.last.Add(1)
}

// Stale logs and reports whether t has been superseded.
func (s *Sequence) Stale(t Token, component string) bool {
	if s.Current(t) {
		return false
	}
	log.Debug().
		Str("component", component).
		Uint64("token", uint64(t)).
		Uint64("latest", s.last.Load()).
		Msg("Discarding superseded response")
	return true
}
