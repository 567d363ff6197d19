package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"
)

const cursorVersion = 1

// ErrInvalidCursor is returned when a history cursor cannot be decoded.
var ErrInvalidCursor = &ValidationError{Fields: map[string][]string{"cursor": {"Invalid cursor."}}}

type cursorToken struct {
	Version   int    `json:"v"`
	CreatedAt int64  `json:"t"`
	ID        string `json:"id"`
}

// EncodeCursor renders p as an opaque, versioned history cursor.
func EncodeCursor(p Position) string {
	raw, _ := json.Marshal(cursorToken{
		Version:   cursorVersion,
		CreatedAt: p.CreatedAt.UnixMicro(),
		ID:        p.ID,
	})

	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a cursor produced by EncodeCursor. Any malformed input yields
// ErrInvalidCursor.
func DecodeCursor(cursor string) (Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Position{}, ErrInvalidCursor
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var token cursorToken
	if err := dec.Decode(&token); err != nil {
		return Position{}, ErrInvalidCursor
	}

	if dec.More() {
		return Position{}, ErrInvalidCursor
	}

	if token.Version != cursorVersion || token.CreatedAt <= 0 || !ValidEventID(token.ID) {
		return Position{}, ErrInvalidCursor
	}

	return Position{CreatedAt: time.UnixMicro(token.CreatedAt).UTC(), ID: token.ID}, nil
}
