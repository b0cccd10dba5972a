// Package dal holds the domain value types persisted by the scheduler-unit
// store: long-lived processes, the append-only messages they accumulate
// (full data items as well as lightweight assignments), scheduler ownership
// records, and the paginated result shape returned by ranged message reads.
//
// A Message or Process body is an opaque structured document at this layer.
// Only the handful of scalar fields the store indexes on (ids, epoch, nonce,
// timestamp, and the hash-chain token) are parsed out; everything else rides
// along verbatim.
package dal

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// DataItem is the signed payload carried by a full message. A message row
// whose envelope has no DataItem is an assignment referencing one.
type DataItem struct {
	ID   string `json:"id"`
	Data string `json:"data,omitempty"`
}

// Assignment orders a message within its process. Epoch, Nonce, Timestamp
// and HashChain are caller-supplied and stored verbatim; this layer never
// computes or verifies them.
type Assignment struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"message_id"`
	ProcessID string `json:"process_id"`
	Epoch     int32  `json:"epoch"`
	Nonce     int32  `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	HashChain string `json:"hash_chain"`
}

type messageEnvelope struct {
	Message    *DataItem  `json:"message,omitempty"`
	Assignment Assignment `json:"assignment"`
}

// Message is one element of a process's append-only sequence. Its document
// and raw bundle round-trip byte-for-byte through the store.
type Message struct {
	env    messageEnvelope
	doc    json.RawMessage
	bundle []byte
}

// NewMessage builds a Message from a DataItem (which may be nil, making the
// message a pure assignment) and its Assignment. The serialized envelope
// doubles as both the structured document and the raw bundle.
func NewMessage(item *DataItem, assignment Assignment) (*Message, error) {
	var env = messageEnvelope{Message: item, Assignment: assignment}

	var doc, err = json.Marshal(&env)
	if err != nil {
		return nil, errors.WithMessage(err, "marshaling message envelope")
	}
	var m = &Message{env: env, doc: doc, bundle: doc}
	return m, m.validate()
}

// MessageFromDocument decodes a Message from its structured document,
// attaching |bundle| as its raw payload bytes.
func MessageFromDocument(doc, bundle []byte) (*Message, error) {
	var m = &Message{
		doc:    append(json.RawMessage(nil), doc...),
		bundle: bundle,
	}
	if err := json.Unmarshal(doc, &m.env); err != nil {
		return nil, errors.WithMessage(err, "unmarshaling message document")
	}
	return m, m.validate()
}

// MessageFromBytes decodes a Message from its raw bundle alone. The bundle
// is the canonical serialized envelope, so no separate document is needed.
func MessageFromBytes(bundle []byte) (*Message, error) {
	return MessageFromDocument(bundle, bundle)
}

func (m *Message) validate() error {
	if m.MessageID() == "" {
		return errors.New("message envelope names no message id")
	} else if m.env.Assignment.ProcessID == "" {
		return errors.New("message envelope names no process id")
	}
	return nil
}

// MessageID is the id of the data item this message concerns. For a full
// message it is the DataItem's own id; for an assignment it is the id of
// the referenced data item.
func (m *Message) MessageID() string {
	if m.env.Message != nil {
		return m.env.Message.ID
	}
	return m.env.Assignment.MessageID
}

// AssignmentID is the id of the assignment itself, or empty if the row
// carries none and is itself canonical.
func (m *Message) AssignmentID() string { return m.env.Assignment.ID }

// IsAssignment is true if the message carries no payload.
func (m *Message) IsAssignment() bool { return m.env.Message == nil }

func (m *Message) ProcessID() string { return m.env.Assignment.ProcessID }
func (m *Message) Epoch() int32      { return m.env.Assignment.Epoch }
func (m *Message) Nonce() int32      { return m.env.Assignment.Nonce }
func (m *Message) Timestamp() int64  { return m.env.Assignment.Timestamp }
func (m *Message) HashChain() string { return m.env.Assignment.HashChain }

func (m *Message) Document() json.RawMessage    { return m.doc }
func (m *Message) Bundle() []byte               { return m.bundle }
func (m *Message) MarshalJSON() ([]byte, error) { return m.doc, nil }

// Process is a long-lived actor registered with the scheduler. It is
// immutable once stored.
type Process struct {
	processID string
	doc       json.RawMessage
	bundle    []byte
}

// NewProcess builds a Process with a minimal document naming only its id.
func NewProcess(processID string) (*Process, error) {
	var doc, err = json.Marshal(struct {
		ProcessID string `json:"process_id"`
	}{processID})
	if err != nil {
		return nil, errors.WithMessage(err, "marshaling process document")
	}
	return ProcessFromDocument(doc, doc)
}

// ProcessFromDocument decodes a Process from its structured document,
// attaching |bundle| as the raw bytes captured at creation.
func ProcessFromDocument(doc, bundle []byte) (*Process, error) {
	var probe struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return nil, errors.WithMessage(err, "unmarshaling process document")
	} else if probe.ProcessID == "" {
		return nil, errors.New("process document names no process id")
	}
	return &Process{
		processID: probe.ProcessID,
		doc:       append(json.RawMessage(nil), doc...),
		bundle:    bundle,
	}, nil
}

func (p *Process) ProcessID() string         { return p.processID }
func (p *Process) Document() json.RawMessage { return p.doc }
func (p *Process) Bundle() []byte            { return p.bundle }

// Scheduler is a remote scheduling peer which may own processes. RowID is
// the store's surrogate key, zero until first persisted.
type Scheduler struct {
	RowID        int32
	URL          string
	ProcessCount int32
}

// ProcessScheduler binds a process to the scheduler which owns it.
// The binding is immutable once stored.
type ProcessScheduler struct {
	RowID          int32
	ProcessID      string
	SchedulerRowID int32
}
