package config

import (
	"crypto/ecdsa"
	"os"
	"strings"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

func readFile(cfg *Configuration, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.SetStrict(true)
	return errors.Wrap(decoder.Decode(cfg), path)
}

func readEnv(cfg *Configuration) error {
	return errors.Wrap(envconfig.Process("", cfg), "environment")
}

// Load reads path (if it exists), applies the environment on top and
// validates the result.
func Load(path string) (*Configuration, error) {
	cfg := &Configuration{}
	defaults(cfg)

	if path != "" {
		err := readFile(cfg, path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := readEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// RootKey parses the signer root key.
func (c *Configuration) RootKey() (*ecdsa.PrivateKey, error) {
	key, err := parseKey(c.Signer.RootPrivateKey)
	return key, errors.Wrap(err, "signer.root_private_key")
}

// FundingKey parses the EVM funding key, nil when funding is not configured.
func (c *Configuration) FundingKey() (*ecdsa.PrivateKey, error) {
	if c.EVM.FundingPrivateKey == "" {
		return nil, nil
	}
	key, err := parseKey(c.EVM.FundingPrivateKey)
	return key, errors.Wrap(err, "evm.funding_private_key")
}

func (c *Configuration) Validate() error {
	if c.Signer.RootPrivateKey == "" {
		return errors.New("signer.root_private_key is required")
	}
	if _, err := c.RootKey(); err != nil {
		return err
	}

	fundingKey, err := c.FundingKey()
	if err != nil {
		return err
	}
	if c.EVM.FundingAddress != "" {
		if err := ethav.Validate(c.EVM.FundingAddress); err != nil {
			return errors.Wrap(err, "evm.funding_address")
		}
		if fundingKey == nil || crypto.PubkeyToAddress(fundingKey.PublicKey) != common.HexToAddress(c.EVM.FundingAddress) {
			return errors.New("evm.funding_address does not match evm.funding_private_key")
		}
	}

	switch c.Registry.Store {
	case StoreMemory, StoreBadger:
	case StoreRedis:
		if c.Redis.Host == "" || c.Redis.Port == 0 {
			return errors.New("redis.host and redis.port are required for the redis store")
		}
	default:
		return errors.Errorf("unknown registry.store %q", c.Registry.Store)
	}

	seen := make(map[int64]bool)
	for _, chain := range c.EVM.Chains {
		if chain.ChainID <= 0 {
			return errors.Errorf("evm chain %q has no chain_id", chain.Name)
		}
		if seen[chain.ChainID] {
			return errors.Errorf("evm chain %d configured twice", chain.ChainID)
		}
		seen[chain.ChainID] = true
		if len(chain.RPCList) == 0 {
			return errors.Errorf("evm chain %d has no rpc endpoints", chain.ChainID)
		}
	}

	switch c.Bitcoin.Backend {
	case "":
	case BitcoinNode:
		if c.Bitcoin.Node.URL == "" {
			return errors.New("bitcoin.node.url is required for the node backend")
		}
	case BitcoinExplorer:
		if c.Bitcoin.ExplorerURL == "" {
			return errors.New("bitcoin.explorer_url is required for the explorer backend")
		}
	default:
		return errors.Errorf("unknown bitcoin.backend %q", c.Bitcoin.Backend)
	}
	if c.Bitcoin.Backend != "" && c.Bitcoin.Network != "testnet" && c.Bitcoin.Network != "regtest" {
		return errors.Errorf("unsupported bitcoin.network %q", c.Bitcoin.Network)
	}

	if c.Solana.Enabled && (c.Solana.RPCURL == "" || c.Solana.WSURL == "" || c.Solana.ProgramID == "" || c.Solana.ResponderKey == "") {
		return errors.New("solana needs rpc_url, ws_url, program_id and responder_key")
	}
	if c.Substrate.Enabled && c.Substrate.URL == "" {
		return errors.New("substrate.url is required")
	}
	return nil
}
