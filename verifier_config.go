package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/flankk/node/pkg/channel"
)

const verifiersFileName = "verifiers.yaml"

var (
	chainNameRegex       = regexp.MustCompile(`^[a-z][a-z_]+[a-z]$`)
	contractAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// VerifiersConfig is the root of verifiers.yaml. Default addresses apply to
// every chain unless the chain overrides them.
type VerifiersConfig struct {
	DefaultVerifiers VerifierAddressesConfig `yaml:"default_verifiers"`
	Chains           []VerifierChainConfig   `yaml:"chains"`
}

// VerifierChainConfig holds the verifier deployment of one chain.
type VerifierChainConfig struct {
	// Name must be snake_case, e.g. "optimism_sepolia"
	Name      string                  `yaml:"name"`
	ID        uint64                  `yaml:"id"`
	Disabled  bool                    `yaml:"disabled"`
	Verifiers VerifierAddressesConfig `yaml:"verifiers"`
}

// VerifierAddressesConfig lists the condition verifier contracts and the
// deposit log contract referenced by CDTLC conditions.
type VerifierAddressesConfig struct {
	TLC   string `yaml:"tlc"`
	SSTLC string `yaml:"sstlc"`
	CTLC  string `yaml:"ctlc"`
	CDTLC string `yaml:"cdtlc"`
	Log   string `yaml:"log"`
}

// LoadVerifiers reads <configDirPath>/verifiers.yaml. Without the file the
// public deployments are used.
func LoadVerifiers(configDirPath string) (*channel.Verifiers, error) {
	f, err := os.Open(filepath.Join(configDirPath, verifiersFileName))
	if errors.Is(err, os.ErrNotExist) {
		return channel.DefaultVerifiers(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseVerifiers(f)
}

func parseVerifiers(r io.Reader) (*channel.Verifiers, error) {
	var cfg VerifiersConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.verifyVariables(); err != nil {
		return nil, err
	}

	return channel.NewVerifiers(cfg.getEnabled()), nil
}

// verifyVariables validates addresses and fills chain entries from the defaults in place.
func (cfg *VerifiersConfig) verifyVariables() error {
	defaults := cfg.DefaultVerifiers
	for _, f := range defaults.fields() {
		if *f.value != "" && !contractAddressRegex.MatchString(*f.value) {
			return fmt.Errorf("invalid default %s verifier address '%s'", f.name, *f.value)
		}
	}

	seen := make(map[uint64]bool)
	for i, c := range cfg.Chains {
		if c.Disabled {
			continue
		}

		if !chainNameRegex.MatchString(c.Name) {
			return fmt.Errorf("invalid chain name '%s', should match snake_case format", c.Name)
		}
		if c.ID == 0 {
			return fmt.Errorf("missing chain id for chain '%s'", c.Name)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate chain id %d", c.ID)
		}
		seen[c.ID] = true

		defaultFields := defaults.fields()
		for j, f := range cfg.Chains[i].Verifiers.fields() {
			if *f.value == "" {
				if *defaultFields[j].value == "" {
					return fmt.Errorf("missing default and chain-specific %s verifier address for chain '%s'", f.name, c.Name)
				}
				*f.value = *defaultFields[j].value
			} else if !contractAddressRegex.MatchString(*f.value) {
				return fmt.Errorf("invalid %s verifier address '%s' for chain '%s'", f.name, *f.value, c.Name)
			}
		}
	}

	return nil
}

func (cfg *VerifiersConfig) getEnabled() map[uint64]channel.VerifierSet {
	chains := make(map[uint64]channel.VerifierSet)
	for _, c := range cfg.Chains {
		if c.Disabled {
			continue
		}
		v := c.Verifiers
		chains[c.ID] = channel.VerifierSet{
			TLC:   common.HexToAddress(v.TLC),
			SSTLC: common.HexToAddress(v.SSTLC),
			CTLC:  common.HexToAddress(v.CTLC),
			CDTLC: common.HexToAddress(v.CDTLC),
			Log:   common.HexToAddress(v.Log),
		}
	}
	return chains
}

type addressField struct {
	name  string
	value *string
}

func (v *VerifierAddressesConfig) fields() []addressField {
	return []addressField{
		{"tlc", &v.TLC},
		{"sstlc", &v.SSTLC},
		{"ctlc", &v.CTLC},
		{"cdtlc", &v.CDTLC},
		{"log", &v.Log},
	}
}
