// Package protocol defines the wire shape of an operation frame and its
// conversion to/from the ot.Operation the core deals in. MarshalJSON emits
// "content" only for INSERT and "length" only for DELETE. UnmarshalJSON
// requires "content" on INSERT and "length" on DELETE; a field that belongs
// to the other kind is ignored rather than rejected.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shiv248/otrelay/pkg/ot"
)

// Kind is the wire-level operation tag.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindDelete Kind = "DELETE"
)

// ErrMalformed is returned for any frame that fails JSON validation or is
// missing the field its kind requires.
var ErrMalformed = fmt.Errorf("protocol: malformed operation frame")

// OperationMessage is the single symmetric wire shape used both
// client→server and server→client.
type OperationMessage struct {
	Kind     Kind
	Position uint32
	Revision uint32
	Content  string // required iff Kind == KindInsert
	Length   uint32 // required iff Kind == KindDelete
}

// MarshalJSON emits only the fields relevant to Kind: no null
// "content"/"length" on the wrong variant.
func (m OperationMessage) MarshalJSON() ([]byte, error) {
	raw := map[string]interface{}{
		"kind":     string(m.Kind),
		"position": m.Position,
		"revision": m.Revision,
	}
	switch m.Kind {
	case KindInsert:
		raw["content"] = m.Content
	case KindDelete:
		raw["length"] = m.Length
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes into a raw field map first so it can distinguish
// "field absent" from "field present with zero value" and enforce the
// per-kind requirement.
func (m *OperationMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kindRaw, ok := raw["kind"]
	if !ok {
		return fmt.Errorf("%w: missing \"kind\"", ErrMalformed)
	}
	var kind Kind
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	position, err := requireUint32(raw, "position")
	if err != nil {
		return err
	}
	revision, err := requireUint32(raw, "revision")
	if err != nil {
		return err
	}

	out := OperationMessage{Kind: kind, Position: position, Revision: revision}
	switch kind {
	case KindInsert:
		contentRaw, ok := raw["content"]
		if !ok {
			return fmt.Errorf("%w: INSERT missing \"content\"", ErrMalformed)
		}
		if err := json.Unmarshal(contentRaw, &out.Content); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case KindDelete:
		length, err := requireUint32(raw, "length")
		if err != nil {
			return err
		}
		out.Length = length
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}

	*m = out
	return nil
}

func requireUint32(raw map[string]json.RawMessage, key string) (uint32, error) {
	field, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	var v uint32
	if err := json.Unmarshal(field, &v); err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, key, err)
	}
	return v, nil
}

// FromOperation converts a committed ot.Operation into its wire form.
func FromOperation(op ot.Operation) OperationMessage {
	switch op.Kind {
	case ot.KindInsert:
		return OperationMessage{Kind: KindInsert, Position: op.Position, Revision: op.Revision, Content: op.Text}
	default:
		return OperationMessage{Kind: KindDelete, Position: op.Position, Revision: op.Revision, Length: op.Length}
	}
}

// ToOperation converts a decoded wire message into an ot.Operation.
func (m OperationMessage) ToOperation() (ot.Operation, error) {
	switch m.Kind {
	case KindInsert:
		return ot.Insert(m.Position, m.Revision, m.Content), nil
	case KindDelete:
		return ot.Delete(m.Position, m.Revision, m.Length), nil
	default:
		return ot.Operation{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
}
