package substrate

import (
	"context"
	"testing"

	"sigresponder/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/chain"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedhavyas/go-subkey/v2"
	"go.uber.org/zap"
)

var account = func() [32]byte {
	var a [32]byte
	for i := range a {
		a[i] = byte(i + 1)
	}
	return a
}()

func decoded(kv ...any) registry.DecodedFields {
	var out registry.DecodedFields
	for i := 0; i < len(kv); i += 2 {
		out = append(out, &registry.DecodedField{Name: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func u8s(b []byte) []any {
	out := make([]any, len(b))
	for i, v := range b {
		out[i] = gstypes.U8(v)
	}
	return out
}

func TestStripCompactPrefix(t *testing.T) {
	assert.Equal(t, []byte("m/0"), StripCompactPrefix(append([]byte{3 << 2}, "m/0"...)))
	assert.Equal(t, []byte("m/0"), StripCompactPrefix([]byte("m/0")))
	assert.Equal(t, []byte{}, StripCompactPrefix([]byte{0}))

	long := make([]byte, 70)
	prefixed := append([]byte{0x19, 0x01}, long...)
	assert.Equal(t, long, StripCompactPrefix(prefixed))
}

func TestToBytesShapes(t *testing.T) {
	for name, v := range map[string]any{
		"slice":   []byte{1, 2},
		"array":   [2]byte{1, 2},
		"u8s":     u8s([]byte{1, 2}),
		"hex":     "0x0102",
		"wrapped": decoded("0", []byte{1, 2}),
		"ptr":     &[]byte{1, 2},
	} {
		b, err := toBytes(v)
		require.NoError(t, err, name)
		assert.Equal(t, []byte{1, 2}, b, name)
	}

	_, err := toBytes([]any{gstypes.U32(300)})
	assert.Error(t, err)
	_, err = toBytes(nil)
	assert.Error(t, err)
}

func TestDecodeSignatureRequested(t *testing.T) {
	payload := make([]byte, 32)
	payload[31] = 9
	d := &Decoder{SS58Format: 0}

	ev, ok, err := d.Decode(EventSignatureRequested, decoded(
		"sender", account,
		"payload", u8s(payload),
		"key_version", gstypes.U32(1),
		"deposit", gstypes.NewU128(*common.Big1),
		"chain_id", []byte("polkadot:2034"),
		"path", append([]byte{3 << 2}, "m/0"...),
		"algo", []byte("ecdsa"),
		"dest", []byte{},
		"params", []byte(""),
	))
	require.True(t, ok)
	require.NoError(t, err)

	sr := ev.(types.SignatureRequested)
	assert.Equal(t, types.OriginSubstrate, sr.Origin)
	assert.Equal(t, subkey.SS58Encode(account[:], 0), sr.Request.Sender)
	assert.Equal(t, byte(9), sr.Request.Payload[31])
	assert.Equal(t, "polkadot:2034", sr.Request.ChainID)
	assert.Equal(t, types.SigningParams{KeyVersion: 1, Path: "m/0", Algo: "ecdsa"}, sr.Request.SigningParams)
}

func signRespondFields(slip44 uint32) registry.DecodedFields {
	return decoded(
		"sender", account,
		"transaction_data", []byte{0x02, 0xc0},
		"slip44_chain_id", gstypes.U32(slip44),
		"key_version", gstypes.U32(0),
		"deposit", gstypes.NewU128(*common.Big0),
		"path", []byte("m/1"),
		"algo", []byte("ecdsa"),
		"dest", []byte("ethereum"),
		"params", []byte(""),
		"explorer_deserialization_format", gstypes.U8(1),
		"explorer_deserialization_schema", []byte(`[{"name":"ok","type":"bool"}]`),
		"callback_serialization_format", gstypes.U8(0),
		"callback_serialization_schema", append([]byte{6 << 2}, `"bool"`...),
	)
}

func TestDecodeSignRespondRequested(t *testing.T) {
	d := &Decoder{Slip44: map[uint32]string{60: "eip155:11155111"}, SS58Format: 42}

	ev, ok, err := d.Decode(EventSignRespondRequested, signRespondFields(60))
	require.True(t, ok)
	require.NoError(t, err)

	br := ev.(types.BidirectionalRequested)
	assert.Equal(t, "eip155:11155111", br.Request.CAIP2ID)
	assert.Equal(t, []byte{0x02, 0xc0}, br.Request.SerializedTransaction)
	assert.Equal(t, types.Schema{Format: types.FormatABI, Raw: []byte(`[{"name":"ok","type":"bool"}]`)}, br.Request.OutputSchema)
	assert.Equal(t, types.Schema{Format: types.FormatBorsh, Raw: []byte(`"bool"`)}, br.Request.CallbackSchema)
	assert.Equal(t, "ethereum", br.Request.Dest)
	assert.Equal(t, subkey.SS58Encode(account[:], 42), br.Request.Sender)

	_, ok, err = d.Decode(EventSignRespondRequested, signRespondFields(1))
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrUnknownSlip44)
}

func TestDecodeIgnoresOtherEvents(t *testing.T) {
	_, ok, err := (&Decoder{}).Decode("Balances.Transfer", nil)
	assert.False(t, ok)
	assert.NoError(t, err)

	_, ok, err = (&Decoder{}).Decode(EventSignatureRequested, decoded("sender", account))
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrMissingField)
}

type fakeChain struct{ hashes map[uint64]gstypes.Hash }

func (f *fakeChain) SubscribeFinalizedHeads() (*chain.FinalizedHeadsSubscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeChain) GetBlockHash(n uint64) (gstypes.Hash, error) {
	h, ok := f.hashes[n]
	if !ok {
		return gstypes.Hash{}, errors.New("unknown block")
	}
	return h, nil
}

type fakeEvents struct {
	byHash map[gstypes.Hash][]*parser.Event
	asked  []gstypes.Hash
}

func (f *fakeEvents) GetEvents(h gstypes.Hash) ([]*parser.Event, error) {
	f.asked = append(f.asked, h)
	return f.byHash[h], nil
}

func TestFeedCatchesUpSkippedHeads(t *testing.T) {
	c := &fakeChain{hashes: map[uint64]gstypes.Hash{5: {5}, 6: {6}, 7: {7}}}
	evs := &fakeEvents{byHash: map[gstypes.Hash][]*parser.Event{
		{6}: {
			{Name: "System.ExtrinsicSuccess"},
			{Name: EventSignRespondRequested, Fields: signRespondFields(60)},
		},
	}}
	f := NewFeed(c, evs, &Decoder{Slip44: map[uint32]string{60: "eip155:1"}}, 0, zap.NewNop())

	out := make(chan types.Event, 4)
	f.processUpTo(context.Background(), 5, out)
	f.processUpTo(context.Background(), 7, out)

	assert.Equal(t, []gstypes.Hash{{5}, {6}, {7}}, evs.asked)
	require.Len(t, out, 1)
	assert.IsType(t, types.BidirectionalRequested{}, <-out)
	assert.EqualValues(t, 7, f.last)
}

func TestFeedIgnoresRepeatedHead(t *testing.T) {
	c := &fakeChain{hashes: map[uint64]gstypes.Hash{6: {6}}}
	evs := &fakeEvents{byHash: map[gstypes.Hash][]*parser.Event{
		{6}: {{Name: EventSignRespondRequested, Fields: signRespondFields(60)}},
	}}
	f := NewFeed(c, evs, &Decoder{Slip44: map[uint32]string{60: "eip155:1"}}, 0, zap.NewNop())

	out := make(chan types.Event, 4)
	f.processUpTo(context.Background(), 6, out)
	f.processUpTo(context.Background(), 6, out)
	f.processUpTo(context.Background(), 5, out)

	assert.Equal(t, []gstypes.Hash{{6}}, evs.asked)
	assert.Len(t, out, 1)
	assert.EqualValues(t, 6, f.last)
}

func TestFeedStopsAtUnreadableBlock(t *testing.T) {
	c := &fakeChain{hashes: map[uint64]gstypes.Hash{1: {1}}}
	f := NewFeed(c, &fakeEvents{}, &Decoder{}, 0, zap.NewNop())
	f.processUpTo(context.Background(), 1, make(chan types.Event, 1))
	f.processUpTo(context.Background(), 3, make(chan types.Event, 1))
	assert.EqualValues(t, 1, f.last)
}

func TestCallArgumentEncoding(t *testing.T) {
	var sig types.Signature
	sig.BigR.X[0], sig.BigR.Y[0], sig.S[0], sig.RecoveryID = 1, 2, 3, 1

	enc, err := codec.Encode(toSignatureArg(sig))
	require.NoError(t, err)
	require.Len(t, enc, 97)
	assert.Equal(t, byte(1), enc[0])
	assert.Equal(t, byte(2), enc[32])
	assert.Equal(t, byte(3), enc[64])
	assert.Equal(t, byte(1), enc[96])

	enc, err = codec.Encode(errorResponseArg{RequestID: [32]byte{7}, ErrorMessage: []byte("no")})
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{7}, make([]byte, 31)...), 2<<2, 'n', 'o'), enc)
}
