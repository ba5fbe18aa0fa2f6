package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/channel"
	"github.com/flankk/node/pkg/log"
)

const (
	configDirPathEnv     = "FLANKK_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
	privateKeyEnv        = "FLANKK_PRIVATE_KEY"
)

// ChainConfig describes the settlement chain and the custody deployment channels are opened on.
type ChainConfig struct {
	RPC                 string `env:"FLANKK_RPC_URL" env-required:"true"`
	ChainID             uint64 `env:"FLANKK_CHAIN_ID" env-default:"11155420"`
	CustodyAddress      string `env:"FLANKK_CUSTODY_ADDRESS" env-default:"0x427fF03f452B28ebc90D9AB51db014D0B28eA0AA"`
	DomainName          string `env:"FLANKK_DOMAIN_NAME" env-default:"Flankk"`
	DomainVersion       string `env:"FLANKK_DOMAIN_VERSION" env-default:"0.0.5"`
	MaxConditionTimeout uint64 `env:"FLANKK_MAX_CONDITION_TIMEOUT" env-default:"2592000"` // in seconds
	MetricsTextfile     string `env:"FLANKK_METRICS_TEXTFILE" env-default:""`
}

// Domain returns the EIP-712 domain of the custody contract.
func (c ChainConfig) Domain() flankk.Domain {
	return flankk.Domain{
		ChainID:           c.ChainID,
		Name:              c.DomainName,
		VerifyingContract: common.HexToAddress(c.CustodyAddress),
		Version:           c.DomainVersion,
	}
}

// Config represents the overall application configuration
type Config struct {
	chain         ChainConfig
	verifiers     *channel.Verifiers
	privateKeyHex string
	dbConf        DatabaseConfig
}

// LoadConfig builds configuration from environment variables and the config directory.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	configDotEnvPath := filepath.Join(configDirPath, ".env")
	logger.Info("loading .env file", "path", configDotEnvPath)
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Warn(".env file not found")
	}

	var chain ChainConfig
	if err := cleanenv.ReadEnv(&chain); err != nil {
		logger.Error("failed to read env", "err", err)
		return nil, err
	}
	if !contractAddressRegex.MatchString(chain.CustodyAddress) {
		return nil, fmt.Errorf("invalid custody address '%s'", chain.CustodyAddress)
	}
	logger.Info("set chain", "chainID", chain.ChainID, "custody", chain.CustodyAddress)

	// If FLANKK_DATABASE_URL is set it wins over the individual variables
	var dbConf DatabaseConfig
	if dbURL := os.Getenv("FLANKK_DATABASE_URL"); dbURL != "" {
		var err error
		dbConf, err = ParseConnectionString(dbURL)
		if err != nil {
			logger.Error("failed to parse connection string", "err", err)
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&dbConf); err != nil {
		logger.Error("failed to read env", "err", err)
		return nil, err
	}

	verifiers, err := LoadVerifiers(configDirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifiers: %w", err)
	}
	if _, err := verifiers.LogAddress(chain.ChainID); err != nil {
		return nil, fmt.Errorf("no verifiers configured for chain %d", chain.ChainID)
	}

	privateKeyHex, err := readPrivateKey()
	if err != nil {
		return nil, err
	}

	return &Config{
		chain:         chain,
		verifiers:     verifiers,
		privateKeyHex: privateKeyHex,
		dbConf:        dbConf,
	}, nil
}

// readPrivateKey takes the key from FLANKK_PRIVATE_KEY, or prompts for it
// when stdin is a terminal.
func readPrivateKey() (string, error) {
	if key := os.Getenv(privateKeyEnv); key != "" {
		return key, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s environment variable is required", privateKeyEnv)
	}

	fmt.Fprint(os.Stderr, "Private key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	return strings.TrimSpace(string(key)), nil
}
