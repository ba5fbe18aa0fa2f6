package flankk

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationTypedDataHashes(t *testing.T) {
	channelID := common.HexToHash("0x3f9fa2fece8517d61c0b1a913aaeb441ba0af1d0c094c21ed16081b3afad0383")
	stateHash := common.HexToHash("0x01")

	cases := map[string]apitypes.TypedData{
		OpenChannelConf:           OpenChannelTypedData(testDomain, channelID, stateHash, true),
		FundChannelConf:           FundChannelTypedData(testDomain, channelID, stateHash),
		UpdateChannelConf:         UpdateChannelTypedData(testDomain, channelID, stateHash),
		SettlementConf:            SettlementTypedData(testDomain, channelID, stateHash),
		CollaborativeWithdrawConf: CollaborativeWithdrawTypedData(testDomain, channelID, stateHash, big.NewInt(1), big.NewInt(2), big.NewInt(3)),
	}

	seen := map[string]string{}
	for name, td := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, td.PrimaryType)
			hash, _, err := apitypes.TypedDataAndHash(td)
			require.NoError(t, err)
			require.Len(t, hash, 32)
			seen[string(hash)] = name
		})
	}
	// update and settlement share a shape but not a type hash
	assert.Len(t, seen, len(cases))
}

func TestSplitSignature(t *testing.T) {
	sig := bytes.Repeat([]byte{0xaa}, 65)
	sig[64] = 1

	parts, err := SplitSignature(sig)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), parts.V)
	assert.Equal(t, byte(0xaa), parts.R[0])

	_, err = SplitSignature(sig[:64])
	assert.Error(t, err)
}

func TestPermitHashAndFundingProof(t *testing.T) {
	permit := bytes.Repeat([]byte{0x11}, 65)
	permit[64] = 27
	fund := bytes.Repeat([]byte{0x22}, 65)
	fund[64] = 28

	encoded, err := EncodeSignature(permit)
	require.NoError(t, err)
	require.Len(t, encoded, 96)
	assert.Equal(t, byte(27), encoded[31])

	h1, err := PermitHash(permit)
	require.NoError(t, err)
	h2, err := PermitHash(fund)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	proof, err := FundingProof(fund, permit)
	require.NoError(t, err)
	swapped, err := FundingProof(permit, fund)
	require.NoError(t, err)
	assert.NotEqual(t, proof, swapped)

	_, err = FundingProof(fund[:10], permit)
	assert.Error(t, err)
}
