// Package document implements the append-only committed-operation log and
// its linearizing Apply, which rebases an incoming operation over the tail
// of already-committed operations before assigning it a revision.
package document

import (
	"fmt"
	"sync"

	"github.com/shiv248/otrelay/pkg/ot"
)

// ErrInvalidRevision is returned when an incoming operation names a
// revision outside [0, len(operations)].
var ErrInvalidRevision = fmt.Errorf("document: revision out of range")

// Document is the server's authoritative append-only log for one text.
// Mutation is expected to happen from a single caller (the session
// serializer); the mutex here is a safety net, not a substitute for that
// discipline.
type Document struct {
	mu         sync.Mutex
	operations []ot.Operation
	text       string
}

// New returns an empty Document.
func New() *Document {
	return &Document{}
}

// Apply transforms incoming over operations[incoming.Revision:], assigns it
// the next revision, applies it to the text, appends it to the log, and
// returns the committed operation. It is the linearization point: the
// rebase, text mutation, and append all happen while the Document's mutex
// is held, so concurrent callers can never interleave a rebase with
// another commit.
func (d *Document) Apply(incoming ot.Operation) (ot.Operation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := incoming.Revision
	if int(r) > len(d.operations) {
		return ot.Operation{}, fmt.Errorf("%w: revision %d, document at %d", ErrInvalidRevision, r, len(d.operations))
	}

	committed := incoming
	for _, op := range d.operations[r:] {
		committed = ot.TransformRelativeTo(committed, op)
	}
	committed.Revision = uint32(len(d.operations))

	newText, err := ot.Apply(committed, d.text)
	if err != nil {
		return ot.Operation{}, err
	}

	d.text = newText
	d.operations = append(d.operations, committed)
	return committed, nil
}

// Revision returns len(operations), the next revision to be assigned.
func (d *Document) Revision() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.operations))
}

// Text returns the current committed text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// History returns a copy of the committed operation log.
func (d *Document) History() []ot.Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ot.Operation, len(d.operations))
	copy(out, d.operations)
	return out
}
