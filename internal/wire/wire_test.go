package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"causalcast/internal/causal"
	"causalcast/internal/clock"
)

func TestMessage_RoundTrip(t *testing.T) {
	in := causal.NewMessage("0192-abc", 2, []byte("Deposit $10,000"), clock.VectorClock{1, 0, 3})

	out, err := UnmarshalMessage(MarshalMessage(in))
	require.NoError(t, err)

	assert.Equal(t, "0192-abc", out.ID())
	assert.Equal(t, 2, out.Sender())
	assert.Equal(t, []byte("Deposit $10,000"), out.Payload())
	assert.True(t, out.Clock().Equal(clock.VectorClock{1, 0, 3}), "clock=%s", out.Clock())
}

func TestMessage_NegativeSenderSurvivesEncoding(t *testing.T) {
	in := causal.NewMessage("x", -1, nil, clock.VectorClock{0})

	out, err := UnmarshalMessage(MarshalMessage(in))
	require.NoError(t, err)
	assert.Equal(t, -1, out.Sender(), "receivers must see the bad sender to reject it")
}

func TestMessage_UnpackedClockAccepted(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, msgSender, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(1))
	for _, v := range []uint64{4, 5} {
		b = protowire.AppendTag(b, msgClock, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}

	out, err := UnmarshalMessage(b)
	require.NoError(t, err)
	assert.True(t, out.Clock().Equal(clock.VectorClock{4, 5}), "clock=%s", out.Clock())
}

func TestMessage_UnknownFieldsSkipped(t *testing.T) {
	b := MarshalMessage(causal.NewMessage("id", 0, []byte("p"), clock.VectorClock{1}))
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future extension")

	out, err := UnmarshalMessage(b)
	require.NoError(t, err)
	assert.Equal(t, "id", out.ID())
}

func TestMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated tag", []byte{0x80}},
		{"truncated payload", append(protowire.AppendTag(nil, msgPayload, protowire.BytesType), 0x05, 'a')},
		{"clock with fixed32 type", protowire.AppendFixed32(protowire.AppendTag(nil, msgClock, protowire.Fixed32Type), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalMessage(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLog_RoundTripPreservesOrder(t *testing.T) {
	in := []causal.Delivery{
		{Receiver: 2, Sender: 0, MessageID: "a", Payload: []byte("A"), Clock: clock.VectorClock{1, 0, 0}},
		{Receiver: 2, Sender: 1, MessageID: "b", Payload: []byte("B"), Clock: clock.VectorClock{1, 1, 0}},
	}

	out, err := UnmarshalLog(MarshalLog(in))
	require.NoError(t, err)
	require.Len(t, out, 2)

	for i := range in {
		assert.Equal(t, in[i].Receiver, out[i].Receiver)
		assert.Equal(t, in[i].Sender, out[i].Sender)
		assert.Equal(t, in[i].MessageID, out[i].MessageID)
		assert.Equal(t, in[i].Payload, out[i].Payload)
		assert.True(t, in[i].Clock.Equal(out[i].Clock))
	}
}

func TestLog_Empty(t *testing.T) {
	out, err := UnmarshalLog(MarshalLog(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
}
