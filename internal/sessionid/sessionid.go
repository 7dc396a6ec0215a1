// Package sessionid derives session identifiers in one place so that every
// bridge and pipeline node agrees on the precedence: an id carried by the
// payload itself, then the id stored in session context, then a fresh one.
package sessionid

import (
	"strings"

	"github.com/google/uuid"

	"github.com/normanking/tutorbridge/internal/model"
)

// Unknown is used where a stable key is needed but no id was supplied.
const Unknown = "unknown"

// New mints a fresh session id.
func New() string {
	return uuid.NewString()
}

// Resolve returns the first non-blank candidate, or a fresh id.
func Resolve(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return New()
}

// FromMetadata reads question_id, then session_id, falling back to fallback.
// It never mints: streaming keys must stay stable across chunks.
func FromMetadata(meta model.Metadata, fallback string) string {
	for _, key := range []string{model.MetaQuestionID, model.MetaSessionID} {
		if v := strings.TrimSpace(meta.Value(key)); v != "" {
			return v
		}
	}
	return fallback
}
