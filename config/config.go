package config

import (
	"time"
)

type Configuration struct {
	Server struct {
		Listen string `yaml:"listen"`
		// poll loop tick
		PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
		// pending transactions checked at once per tick
		PollConcurrency    int           `yaml:"poll_concurrency" split_words:"true"`
		DispatchRetries    int           `yaml:"dispatch_retries" split_words:"true"`
		DispatchRetryDelay time.Duration `yaml:"dispatch_retry_delay" split_words:"true"`
		ReconnectDelay     time.Duration `yaml:"reconnect_delay" split_words:"true"`
	} `yaml:"server"`
	// important private stuff
	Signer struct {
		RootPrivateKey string `yaml:"root_private_key" split_words:"true"`
	} `yaml:"signer"`
	Registry struct {
		// memory, redis or badger
		Store string `yaml:"store"`
	} `yaml:"registry"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Badger struct {
		Dir string `yaml:"dir"`
	} `yaml:"badger"`
	EVM struct {
		FundingPrivateKey string `yaml:"funding_private_key" split_words:"true"`
		// optional, must match the funding key when set
		FundingAddress     string        `yaml:"funding_address" split_words:"true"`
		FundingWaitTimeout time.Duration `yaml:"funding_wait_timeout" split_words:"true"`
		Chains             []ChainConfig `yaml:"chains" ignored:"true"`
	} `yaml:"evm"`
	Bitcoin struct {
		// node, explorer or empty to disable bip122
		Backend string `yaml:"backend"`
		Network string `yaml:"network"`
		Node    struct {
			URL      string `yaml:"url"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
		} `yaml:"node"`
		ExplorerURL string        `yaml:"explorer_url" split_words:"true"`
		ExplorerRPS float64       `yaml:"explorer_rps" split_words:"true"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"bitcoin"`
	Solana struct {
		Enabled      bool   `yaml:"enabled"`
		RPCURL       string `yaml:"rpc_url" split_words:"true"`
		WSURL        string `yaml:"ws_url" split_words:"true"`
		ProgramID    string `yaml:"program_id" split_words:"true"`
		ResponderKey string `yaml:"responder_key" split_words:"true"`
		// chain id folded into bidirectional key derivation
		DerivationChainID string            `yaml:"derivation_chain_id" split_words:"true"`
		Slip44            map[uint32]string `yaml:"slip44" ignored:"true"`
	} `yaml:"solana"`
	Substrate struct {
		Enabled           bool              `yaml:"enabled"`
		URL               string            `yaml:"url"`
		SignerSeed        string            `yaml:"signer_seed" split_words:"true"`
		SS58Format        uint16            `yaml:"ss58_format" split_words:"true"`
		DerivationChainID string            `yaml:"derivation_chain_id" split_words:"true"`
		Slip44            map[uint32]string `yaml:"slip44" ignored:"true"`
	} `yaml:"substrate"`
}

// EVM destination chain
type ChainConfig struct {
	Name    string   `yaml:"name"`
	ChainID int64    `yaml:"chain_id"`
	RPCList []string `yaml:"rpc"`
	// top up derived addresses on this chain
	Funding bool `yaml:"funding"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBadger = "badger"

	BitcoinNode     = "node"
	BitcoinExplorer = "explorer"
)

// Defaults applied before the file is read.
func defaults(cfg *Configuration) {
	cfg.Server.Listen = ":8080"
	cfg.Server.PollInterval = 5 * time.Second
	cfg.Server.PollConcurrency = 8
	cfg.Server.DispatchRetries = 3
	cfg.Server.DispatchRetryDelay = 2 * time.Second
	cfg.Server.ReconnectDelay = 5 * time.Second
	cfg.Registry.Store = StoreMemory
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 6379
	cfg.EVM.FundingWaitTimeout = 2 * time.Minute
	cfg.Bitcoin.Network = "testnet"
	cfg.Bitcoin.ExplorerURL = "https://mempool.space/testnet/api"
	cfg.Bitcoin.ExplorerRPS = 5
	cfg.Bitcoin.Timeout = 15 * time.Second
	cfg.Solana.DerivationChainID = "solana:devnet"
	cfg.Substrate.SignerSeed = "//Alice"
	cfg.Substrate.DerivationChainID = "polkadot:2034"
}
