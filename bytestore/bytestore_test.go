package bytestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ByteStore {
	var bs, err = Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(bs.Close)
	return bs
}

func TestKeyEncoding(t *testing.T) {
	var id = BinaryID{
		MessageID:    "msg-1",
		AssignmentID: "asgn-1",
		ProcessID:    "proc-1",
		Timestamp:    "100",
	}
	assert.Equal(t, "message___proc-1___100___msg-1___asgn-1", string(id.key()))

	// An absent assignment omits its key segment.
	id.AssignmentID = ""
	assert.Equal(t, "message___proc-1___100___msg-1", string(id.key()))
}

func TestSaveExistsAndOverwrite(t *testing.T) {
	var bs = newTestStore(t)
	var id = BinaryID{MessageID: "msg-1", ProcessID: "proc-1", Timestamp: "100"}

	assert.False(t, bs.Exists(id))

	require.NoError(t, bs.SaveBinary(id, []byte("first")))
	assert.True(t, bs.Exists(id))

	// SaveBinary is an unconditional overwrite-put.
	require.NoError(t, bs.SaveBinary(id, []byte("second")))
	var out = bs.ReadBinaries([]BinaryID{id})
	assert.Equal(t, []byte("second"), out[id])
}

func TestReadBinariesOmitsMisses(t *testing.T) {
	var bs = newTestStore(t)

	var present = []BinaryID{
		{MessageID: "msg-1", AssignmentID: "asgn-1", ProcessID: "proc-1", Timestamp: "100"},
		{MessageID: "msg-2", ProcessID: "proc-1", Timestamp: "200"},
	}
	for _, id := range present {
		require.NoError(t, bs.SaveBinary(id, []byte("data-"+id.MessageID)))
	}
	var absent = BinaryID{MessageID: "msg-3", ProcessID: "proc-1", Timestamp: "300"}

	var out = bs.ReadBinaries(append(present, absent))
	require.Len(t, out, 2)
	assert.Equal(t, []byte("data-msg-1"), out[present[0]])
	assert.Equal(t, []byte("data-msg-2"), out[present[1]])

	// A miss is simply absent, never an error.
	_, ok := out[absent]
	assert.False(t, ok)
}
