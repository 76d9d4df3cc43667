package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Request limits.
const (
	DefaultMaxBodySize    = 1 << 20 // 1 MiB
	DefaultMaxMessageSize = 32 << 10
	DefaultMaxJSONDepth   = 16
)

// Validation errors.
var (
	ErrBodyTooLarge    = errors.New("security: request body too large")
	ErrMessageTooLarge = errors.New("security: message too large")
	ErrInvalidUTF8     = errors.New("security: message is not valid UTF-8")
	ErrJSONTooDeep     = errors.New("security: JSON nesting too deep")
	ErrInvalidJSON     = errors.New("security: invalid JSON")
)

// ValidateMessage checks a chat message or image prompt before it reaches
// the provider. A limit <= 0 selects DefaultMaxMessageSize.
func ValidateMessage(text string, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if len(text) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(text), limit)
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	return nil
}

// DecodeJSON reads at most DefaultMaxBodySize bytes from r, rejects
// documents nested deeper than DefaultMaxJSONDepth and decodes into v.
func DecodeJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, DefaultMaxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if len(data) > DefaultMaxBodySize {
		return ErrBodyTooLarge
	}
	if err := checkDepth(data, DefaultMaxJSONDepth); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

func checkDepth(data []byte, limit int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
