package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flankk/node/pkg/channel"
)

const testVerifiersYaml = `
default_verifiers:
  tlc: "0x0000000000000000000000000000000000000001"
  sstlc: "0x0000000000000000000000000000000000000002"
  ctlc: "0x0000000000000000000000000000000000000003"
  cdtlc: "0x0000000000000000000000000000000000000004"
  log: "0x0000000000000000000000000000000000000005"
chains:
  - name: optimism_sepolia
    id: 11155420
    verifiers:
      tlc: "0x1111111111111111111111111111111111111111"
  - name: base_sepolia
    id: 84532
  - name: polygon_amoy
    id: 80002
    disabled: true
`

func TestParseVerifiers(t *testing.T) {
	verifiers, err := parseVerifiers(strings.NewReader(testVerifiersYaml))
	require.NoError(t, err)
	assert.Equal(t, []uint64{84532, channel.OptimismSepoliaChainID}, verifiers.Chains())

	tlc, err := verifiers.Address(channel.OptimismSepoliaChainID, channel.ConditionTLC)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), tlc)

	sstlc, err := verifiers.Address(channel.OptimismSepoliaChainID, channel.ConditionSSTLC)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000002"), sstlc)

	logAddr, err := verifiers.LogAddress(84532)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000005"), logAddr)

	_, err = verifiers.Address(80002, channel.ConditionTLC)
	assert.ErrorIs(t, err, channel.ErrInvalidConditionType, "disabled chain")
}

func TestVerifiersConfig_verifyVariables(t *testing.T) {
	full := VerifierAddressesConfig{
		TLC:   "0x0000000000000000000000000000000000000001",
		SSTLC: "0x0000000000000000000000000000000000000002",
		CTLC:  "0x0000000000000000000000000000000000000003",
		CDTLC: "0x0000000000000000000000000000000000000004",
		Log:   "0x0000000000000000000000000000000000000005",
	}

	tcs := []struct {
		name             string
		cfg              VerifiersConfig
		expectedErrorStr string
	}{
		{
			name: "invalid name",
			cfg: VerifiersConfig{
				DefaultVerifiers: full,
				Chains:           []VerifierChainConfig{{Name: "Optimism Sepolia", ID: 1}},
			},
			expectedErrorStr: "invalid chain name 'Optimism Sepolia', should match snake_case format",
		},
		{
			name: "missing id",
			cfg: VerifiersConfig{
				DefaultVerifiers: full,
				Chains:           []VerifierChainConfig{{Name: "optimism"}},
			},
			expectedErrorStr: "missing chain id for chain 'optimism'",
		},
		{
			name: "duplicate id",
			cfg: VerifiersConfig{
				DefaultVerifiers: full,
				Chains: []VerifierChainConfig{
					{Name: "optimism", ID: 10},
					{Name: "optimism_again", ID: 10},
				},
			},
			expectedErrorStr: "duplicate chain id 10",
		},
		{
			name: "invalid default address",
			cfg: VerifiersConfig{
				DefaultVerifiers: VerifierAddressesConfig{TLC: "0x123"},
			},
			expectedErrorStr: "invalid default tlc verifier address '0x123'",
		},
		{
			name: "invalid chain address",
			cfg: VerifiersConfig{
				DefaultVerifiers: full,
				Chains: []VerifierChainConfig{
					{Name: "optimism", ID: 10, Verifiers: VerifierAddressesConfig{CTLC: "not an address"}},
				},
			},
			expectedErrorStr: "invalid ctlc verifier address 'not an address' for chain 'optimism'",
		},
		{
			name: "missing address",
			cfg: VerifiersConfig{
				DefaultVerifiers: VerifierAddressesConfig{TLC: full.TLC, SSTLC: full.SSTLC, CTLC: full.CTLC, CDTLC: full.CDTLC},
				Chains:           []VerifierChainConfig{{Name: "optimism", ID: 10}},
			},
			expectedErrorStr: "missing default and chain-specific log verifier address for chain 'optimism'",
		},
		{
			name: "disabled chains are not checked",
			cfg: VerifiersConfig{
				Chains: []VerifierChainConfig{{Name: "Broken!", Disabled: true}},
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.verifyVariables()
			if tc.expectedErrorStr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.expectedErrorStr, err.Error())
		})
	}
}

func TestLoadVerifiers(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		verifiers, err := LoadVerifiers(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, channel.DefaultVerifiers(), verifiers)
	})

	t.Run("from file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, verifiersFileName), []byte(testVerifiersYaml), 0o600))

		verifiers, err := LoadVerifiers(dir)
		require.NoError(t, err)
		assert.Len(t, verifiers.Chains(), 2)
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, verifiersFileName), []byte("chains: {"), 0o600))

		_, err := LoadVerifiers(dir)
		assert.Error(t, err)
	})
}
