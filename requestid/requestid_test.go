package requestid

import (
	"encoding/hex"
	"math/big"
	"testing"

	"sigresponder/types"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignRespond_KnownVector(t *testing.T) {
	id := SignRespond("Alice", []byte{0xaa}, "eip155:11155111", 0, "m/0", "ecdsa", "", "")
	assert.Equal(t, common.HexToHash("0x84bd744448c7935625d92ab644626790810252da96fe37cd0b6a396213623ccb"), id)
}

func TestSignRespond_PackedLayout(t *testing.T) {
	packed, err := hex.DecodeString("416c696365" + "aa" + hex.EncodeToString([]byte("eip155:1")) + "00000007" + hex.EncodeToString([]byte("m/0ecdsadestparams")))
	require.NoError(t, err)

	assert.Equal(t, crypto.Keccak256Hash(packed), SignRespond("Alice", []byte{0xaa}, "eip155:1", 7, "m/0", "ecdsa", "dest", "params"))
}

func TestSignRespond_EveryFieldMatters(t *testing.T) {
	base := SignRespond("s", []byte{1}, "eip155:1", 1, "p", "a", "d", "x")
	variants := []common.Hash{
		SignRespond("t", []byte{1}, "eip155:1", 1, "p", "a", "d", "x"),
		SignRespond("s", []byte{2}, "eip155:1", 1, "p", "a", "d", "x"),
		SignRespond("s", []byte{1}, "eip155:2", 1, "p", "a", "d", "x"),
		SignRespond("s", []byte{1}, "eip155:1", 2, "p", "a", "d", "x"),
		SignRespond("s", []byte{1}, "eip155:1", 1, "q", "a", "d", "x"),
		SignRespond("s", []byte{1}, "eip155:1", 1, "p", "b", "d", "x"),
		SignRespond("s", []byte{1}, "eip155:1", 1, "p", "a", "e", "x"),
		SignRespond("s", []byte{1}, "eip155:1", 1, "p", "a", "d", "y"),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d", i)
	}
}

func TestPlainSign_NumericAndStringDiffer(t *testing.T) {
	payload := make([]byte, 32)
	payload[31] = 1

	n1, err := Numeric("Alice", payload, "m/0", 0, big.NewInt(1), "ecdsa", "", "")
	require.NoError(t, err)
	n2, err := Numeric("Alice", payload, "m/0", 0, big.NewInt(1), "ecdsa", "", "")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	s1, err := String("Alice", payload, "m/0", 0, "1", "ecdsa", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, n1, s1)

	packed := SignRespond("Alice", payload, "1", 0, "m/0", "ecdsa", "", "")
	assert.NotEqual(t, n1, packed)
	assert.NotEqual(t, s1, packed)

	_, err = Numeric("Alice", payload, "m/0", 0, big.NewInt(-1), "ecdsa", "", "")
	assert.Error(t, err)
}

func TestForSigningRequest_SelectsVariant(t *testing.T) {
	req := types.SigningRequest{
		SigningParams: types.SigningParams{Path: "m/0", Algo: "ecdsa"},
		Sender:        "Alice",
		ChainID:       "11155111",
	}
	req.Payload[0] = 0xff

	got, err := ForSigningRequest(req)
	require.NoError(t, err)
	want, err := Numeric("Alice", req.Payload[:], "m/0", 0, big.NewInt(11155111), "ecdsa", "", "")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	req.ChainID = "polkadot:2034"
	got, err = ForSigningRequest(req)
	require.NoError(t, err)
	want, err = String("Alice", req.Payload[:], "m/0", 0, "polkadot:2034", "ecdsa", "", "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBitcoinIDs(t *testing.T) {
	txid, err := chainhash.NewHashFromStr("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	req := types.BidirectionalRequest{Sender: "Alice", CAIP2ID: "bip122:000000000933ea01ad0ee984209779ba"}
	display, _ := hex.DecodeString("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")

	assert.Equal(t, SignRespond("Alice", display, req.CAIP2ID, 0, "", "", "", ""), BitcoinTransaction(req, *txid))

	withIndex := append(append([]byte{}, display...), 0x02, 0x00, 0x00, 0x00)
	assert.Equal(t, SignRespond("Alice", withIndex, req.CAIP2ID, 0, "", "", "", ""), BitcoinInput(req, *txid, 2))
	assert.NotEqual(t, BitcoinInput(req, *txid, 0), BitcoinInput(req, *txid, 1))
}
