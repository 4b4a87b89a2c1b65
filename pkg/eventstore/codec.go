package eventstore

import (
	"encoding/json"
	"fmt"
)

// ParseError reports a persisted document that could not be decoded.
type ParseError struct {
	UserID string
	Kind   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("eventstore: malformed %s document for user %s: %v", e.Kind, e.UserID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func decodeDocument(userID, kind string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{UserID: userID, Kind: kind, Err: err}
	}
	return nil
}

func encodeDocument(doc any) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
