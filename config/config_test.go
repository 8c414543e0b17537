package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9000"
  poll_interval: 2s
signer:
  root_private_key: "0x`+rootKey+`"
registry:
  store: badger
badger:
  dir: /tmp/responder
evm:
  chains:
    - name: sepolia
      chain_id: 11155111
      rpc: ["http://a", "http://b"]
      funding: true
bitcoin:
  backend: explorer
  network: testnet
substrate:
  enabled: true
  url: ws://127.0.0.1:9944
  slip44:
    60: "eip155:11155111"
`)
	t.Setenv("SERVER_LISTEN", ":9100")
	t.Setenv("SUBSTRATE_SIGNER_SEED", "//Bob")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Listen)
	assert.Equal(t, 2*time.Second, cfg.Server.PollInterval)
	assert.Equal(t, 8, cfg.Server.PollConcurrency)
	assert.Equal(t, StoreBadger, cfg.Registry.Store)
	require.Len(t, cfg.EVM.Chains, 1)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.EVM.Chains[0].RPCList)
	assert.Equal(t, "//Bob", cfg.Substrate.SignerSeed)
	assert.Equal(t, "polkadot:2034", cfg.Substrate.DerivationChainID)
	assert.Equal(t, map[uint32]string{60: "eip155:11155111"}, cfg.Substrate.Slip44)

	key, err := cfg.RootKey()
	require.NoError(t, err)
	expected, _ := crypto.HexToECDSA(rootKey)
	assert.Equal(t, expected.D, key.D)
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("SIGNER_ROOT_PRIVATE_KEY", rootKey)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Registry.Store)
	assert.Equal(t, "//Alice", cfg.Substrate.SignerSeed)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "signer:\n  root_private_key: \""+rootKey+"\"\nbogus: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func validConfig() *Configuration {
	cfg := &Configuration{}
	defaults(cfg)
	cfg.Signer.RootPrivateKey = rootKey
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	fundingKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	fundingHex := common.Bytes2Hex(crypto.FromECDSA(fundingKey))
	fundingAddr := crypto.PubkeyToAddress(fundingKey.PublicKey).Hex()

	cases := map[string]func(c *Configuration){
		"missing root key":  func(c *Configuration) { c.Signer.RootPrivateKey = "" },
		"bad root key":      func(c *Configuration) { c.Signer.RootPrivateKey = "zz" },
		"unknown store":     func(c *Configuration) { c.Registry.Store = "etcd" },
		"unknown backend":   func(c *Configuration) { c.Bitcoin.Backend = "electrum" },
		"mainnet bitcoin":   func(c *Configuration) { c.Bitcoin.Backend = BitcoinExplorer; c.Bitcoin.Network = "mainnet" },
		"node without url":  func(c *Configuration) { c.Bitcoin.Backend = BitcoinNode },
		"chain without rpc": func(c *Configuration) { c.EVM.Chains = []ChainConfig{{ChainID: 1}} },
		"duplicate chain": func(c *Configuration) {
			c.EVM.Chains = []ChainConfig{{ChainID: 1, RPCList: []string{"x"}}, {ChainID: 1, RPCList: []string{"y"}}}
		},
		"bad funding address": func(c *Configuration) {
			c.EVM.FundingPrivateKey = fundingHex
			c.EVM.FundingAddress = "not-an-address"
		},
		"funding address mismatch": func(c *Configuration) {
			c.EVM.FundingPrivateKey = fundingHex
			c.EVM.FundingAddress = common.HexToAddress("0x1111111111111111111111111111111111111111").Hex()
		},
		"solana incomplete": func(c *Configuration) { c.Solana.Enabled = true },
		"substrate no url":  func(c *Configuration) { c.Substrate.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	cfg.EVM.FundingPrivateKey = fundingHex
	cfg.EVM.FundingAddress = fundingAddr
	assert.NoError(t, cfg.Validate())

	key, err := cfg.FundingKey()
	require.NoError(t, err)
	assert.Equal(t, fundingKey.D, key.D)
}
