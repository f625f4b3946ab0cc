package ipc

import (
	"encoding/json"
	"fmt"
)

// ObjectTag identifies the schema of an opaque archived object. This is the
// Go analogue of Sparkle's NSSecureCoding-restricted archiving: decoding an
// object whose tag doesn't match what the caller expects is a protocol
// error, never a type coercion.
type ObjectTag string

const (
	TagInstallationInput  ObjectTag = "installation-input"
	TagAppcastItem        ObjectTag = "appcast-item"
	TagInstallationInfo   ObjectTag = "installation-info"
)

// ErrUnknownObjectType is returned when a decoded envelope's tag does not
// match the tag the caller requires.
var ErrUnknownObjectType = fmt.Errorf("ipc: object has unexpected or unknown schema tag")

// envelope is the wire representation of a tagged archived object: a schema
// tag plus the tag-specific body. Decoding refuses any body whose tag
// doesn't match what the caller asked for.
type envelope struct {
	Tag  ObjectTag       `json:"tag"`
	Body json.RawMessage `json:"body"`
}

// EncodeObject archives v under the given schema tag.
func EncodeObject(tag ObjectTag, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal %s body: %w", tag, err)
	}
	return json.Marshal(envelope{Tag: tag, Body: body})
}

// DecodeObject unarchives data into v, refusing the payload unless its tag
// equals wantTag exactly.
func DecodeObject(data []byte, wantTag ObjectTag, v any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("ipc: malformed archived object: %w", err)
	}
	if env.Tag != wantTag {
		return fmt.Errorf("%w: got %q, want %q", ErrUnknownObjectType, env.Tag, wantTag)
	}
	if err := json.Unmarshal(env.Body, v); err != nil {
		return fmt.Errorf("ipc: malformed %s body: %w", wantTag, err)
	}
	return nil
}
