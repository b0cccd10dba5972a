package dal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var m, err = NewMessage(
		&DataItem{ID: "msg-1", Data: "the payload"},
		Assignment{
			ID:        "asgn-1",
			MessageID: "msg-1",
			ProcessID: "proc-1",
			Epoch:     2,
			Nonce:     7,
			Timestamp: 12345,
			HashChain: "prior-link",
		})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", m.MessageID())
	assert.Equal(t, "asgn-1", m.AssignmentID())
	assert.Equal(t, "proc-1", m.ProcessID())
	assert.Equal(t, int32(2), m.Epoch())
	assert.Equal(t, int32(7), m.Nonce())
	assert.Equal(t, int64(12345), m.Timestamp())
	assert.Equal(t, "prior-link", m.HashChain())
	assert.False(t, m.IsAssignment())

	// The raw bundle alone reconstructs an identical message.
	var out *Message
	out, err = MessageFromBytes(m.Bundle())
	require.NoError(t, err)
	assert.Equal(t, m.Bundle(), out.Bundle())
	assert.Equal(t, m.Document(), out.Document())
	assert.Equal(t, m.MessageID(), out.MessageID())
	assert.Equal(t, m.Timestamp(), out.Timestamp())

	// As does the document paired with the bundle.
	out, err = MessageFromDocument(m.Document(), m.Bundle())
	require.NoError(t, err)
	assert.Equal(t, m.HashChain(), out.HashChain())
}

func TestAssignmentMessage(t *testing.T) {
	var m, err = NewMessage(nil, Assignment{
		ID:        "asgn-1",
		MessageID: "msg-1",
		ProcessID: "proc-1",
		Timestamp: 100,
	})
	require.NoError(t, err)

	assert.True(t, m.IsAssignment())
	assert.Equal(t, "msg-1", m.MessageID())
	assert.Equal(t, "asgn-1", m.AssignmentID())
}

func TestMessageValidation(t *testing.T) {
	var _, err = NewMessage(nil, Assignment{ProcessID: "proc-1"})
	assert.Error(t, err) // No message id.

	_, err = NewMessage(&DataItem{ID: "msg-1"}, Assignment{MessageID: "msg-1"})
	assert.Error(t, err) // No process id.

	_, err = MessageFromBytes([]byte("not json"))
	assert.Error(t, err)
}

func TestProcessDocuments(t *testing.T) {
	var p, err = NewProcess("proc-1")
	require.NoError(t, err)
	assert.Equal(t, "proc-1", p.ProcessID())

	var out *Process
	out, err = ProcessFromDocument(p.Document(), p.Bundle())
	require.NoError(t, err)
	assert.Equal(t, "proc-1", out.ProcessID())
	assert.Equal(t, p.Bundle(), out.Bundle())

	_, err = ProcessFromDocument([]byte(`{}`), nil)
	assert.Error(t, err) // No process id.
	_, err = ProcessFromDocument([]byte(`not json`), nil)
	assert.Error(t, err)
}

func TestPaginateMessages(t *testing.T) {
	var msgs []*Message
	for _, ts := range []int64{100, 200} {
		var m, err = NewMessage(nil, Assignment{
			MessageID: "msg", ProcessID: "proc", Timestamp: ts})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}

	var page = PaginateMessages(msgs, true)
	require.Len(t, page.Edges, 2)
	assert.Equal(t, "100", page.Edges[0].Cursor)
	assert.Equal(t, "200", page.Edges[1].Cursor)
	assert.True(t, page.PageInfo.HasNextPage)

	page = PaginateMessages(nil, false)
	assert.Empty(t, page.Edges)
	assert.False(t, page.PageInfo.HasNextPage)
}
