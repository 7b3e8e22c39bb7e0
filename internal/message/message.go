// Package message holds the message entity, content validation, and the store
// adapter contract the indexing and gateway layers depend on. Two adapters
// are provided: an append-only file journal per channel and a PostgreSQL
// table for deployments that already run a database.
package message

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// MaxContentBytes is the maximum size of a message body in bytes.
const MaxContentBytes = 4096

// Sentinel errors for the message package.
var (
	ErrNotFound    = errors.New("message not found")
	ErrTooBig      = errors.New("message content exceeds the maximum size")
	ErrInvalidText = errors.New("message content must be non-empty valid UTF-8")
)

// Message is a single chat message. CreatedMS is monotonic per channel, with
// ties broken by ID.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    uuid.UUID `json:"sender"`
	CreatedMS int64     `json:"created_ms"`
	Content   string    `json:"content"`
}

// sanitizer strips all HTML from message content before it is persisted or
// broadcast. Clients render content as plain text.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips markup from message content.
func Sanitize(content string) string {
	return sanitizer.Sanitize(content)
}

// ValidateContent checks that content is non-empty valid UTF-8 within the
// size limit. Whitespace-only content is rejected.
func ValidateContent(content string) error {
	if len(content) > MaxContentBytes {
		return ErrTooBig
	}
	if !utf8.ValidString(content) || strings.TrimSpace(content) == "" {
		return ErrInvalidText
	}
	return nil
}
