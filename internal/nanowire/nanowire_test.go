package nanowire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/nanotype"
)

func sampleBlock() *nanotype.Block {
	var acc, rep nanotype.Account
	acc[0] = 1
	rep[0] = 2
	return nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, acc, rep,
		nanotype.AmountFromUint64(500), nanotype.ZeroHash, [64]byte{}, 7)
}

func TestGobCodecRoundTripsPublish(t *testing.T) {
	codec := GobCodec{}
	want := Publish{Block: sampleBlock()}

	raw, err := codec.Encode(want)
	require.NoError(t, err)

	decoded, err := codec.Decode(MessageTypePublish, raw)
	require.NoError(t, err)
	got, ok := decoded.(Publish)
	require.True(t, ok)
	require.Equal(t, want.Block.Hash(), got.Block.Hash())
}

func TestGobCodecRoundTripsConfirmAck(t *testing.T) {
	codec := GobCodec{}
	var voter nanotype.Account
	voter[0] = 9
	want := ConfirmAck{Vote: nanotype.Vote{
		VotingAccount: voter,
		Timestamp:     123,
		Hashes:        []nanotype.Hash{{1}, {2}},
	}}

	raw, err := codec.Encode(want)
	require.NoError(t, err)

	decoded, err := codec.Decode(MessageTypeConfirmAck, raw)
	require.NoError(t, err)
	got, ok := decoded.(ConfirmAck)
	require.True(t, ok)
	require.Equal(t, want.Vote, got.Vote)
}

func TestGobCodecRoundTripsAscPullReqAndAck(t *testing.T) {
	codec := GobCodec{}
	req := AscPullReq{ID: 42, PullType: PullTypeBlocks, Start: nanotype.Hash{3}, Count: 128}
	raw, err := codec.Encode(req)
	require.NoError(t, err)
	decoded, err := codec.Decode(MessageTypeAscPullReq, raw)
	require.NoError(t, err)
	gotReq, ok := decoded.(AscPullReq)
	require.True(t, ok)
	require.Equal(t, req, gotReq)

	ack := AscPullAck{ID: 42, PullType: PullTypeBlocks, Blocks: []*nanotype.Block{sampleBlock()}}
	raw, err = codec.Encode(ack)
	require.NoError(t, err)
	decoded, err = codec.Decode(MessageTypeAscPullAck, raw)
	require.NoError(t, err)
	gotAck, ok := decoded.(AscPullAck)
	require.True(t, ok)
	require.Len(t, gotAck.Blocks, 1)
	require.Equal(t, ack.Blocks[0].Hash(), gotAck.Blocks[0].Hash())
}

func TestDecodeUnknownMessageTypeErrors(t *testing.T) {
	codec := GobCodec{}
	_, err := codec.Decode(MessageType(99), []byte{})
	require.Error(t, err)
}
