package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"sigresponder/BTCRPC"
	"sigresponder/EVMRPC"
	"sigresponder/badger"
	"sigresponder/config"
	"sigresponder/dispatch"
	"sigresponder/logger"
	"sigresponder/metrics"
	"sigresponder/monitor"
	"sigresponder/redis"
	"sigresponder/registry"
	"sigresponder/signer"
	"sigresponder/solana"
	"sigresponder/substrate"
	"sigresponder/types"
	"sigresponder/workers"
	"sigresponder/workers/handlers"

	"github.com/ethereum/go-ethereum/crypto"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func setup(c *cli.Context) (*config.Configuration, *zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, nil, errors.Wrap(err, "logger")
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

func openStore(cfg *config.Configuration, l *zap.Logger) (registry.Store, error) {
	switch cfg.Registry.Store {
	case config.StoreRedis:
		return redis.NewStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, l)
	case config.StoreBadger:
		return badger.Open(cfg.Badger.Dir)
	}
	return registry.MemoryStore{}, nil
}

func openBitcoin(ctx context.Context, cfg *config.Configuration, l *zap.Logger) (BTCRPC.Backend, error) {
	switch cfg.Bitcoin.Backend {
	case config.BitcoinNode:
		return BTCRPC.NewNodeBackend(cfg.Bitcoin.Node.URL, cfg.Bitcoin.Node.User, cfg.Bitcoin.Node.Password, cfg.Bitcoin.Timeout)
	case config.BitcoinExplorer:
		return BTCRPC.NewExplorerBackend(ctx, cfg.Bitcoin.ExplorerURL, cfg.Bitcoin.ExplorerRPS, cfg.Bitcoin.Timeout, l), nil
	}
	return nil, nil
}

func serveCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer l.Sync()
	log := l.Sugar()
	log.Info("Starting signature responder")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootKey, err := cfg.RootKey()
	if err != nil {
		return err
	}
	fundingKey, err := cfg.FundingKey()
	if err != nil {
		return err
	}
	log.Infow("Signer loaded", "rootAddress", crypto.PubkeyToAddress(rootKey.PublicKey).Hex())

	m := metrics.NewMetrics()

	// without the journal a restart forgets what was signed, do not continue
	store, err := openStore(cfg, l)
	if err != nil {
		return errors.Wrap(err, "registry store")
	}
	reg := registry.New(store, m, l)
	defer reg.Close()
	n, err := reg.Load()
	if err != nil {
		return errors.Wrap(err, "registry load")
	}
	log.Infow("Registry loaded", "store", cfg.Registry.Store, "pending", n)

	// destination chains
	chains := EVMRPC.Chains{}
	fundingChains := map[int64]handlers.Balancer{}
	for _, ch := range cfg.EVM.Chains {
		chains[ch.ChainID] = EVMRPC.NewClient(ch.ChainID, ch.RPCList, l)
		if ch.Funding {
			fundingChains[ch.ChainID] = chains[ch.ChainID]
		}
	}
	evmAdapter := signer.NewEVMAdapter(fundingKey, func(id *big.Int) (signer.FundingBackend, bool) {
		client, ok := chains.Lookup(id)
		if !ok {
			return nil, false
		}
		if _, funded := fundingChains[id.Int64()]; !funded {
			return nil, false
		}
		return client, true
	}, cfg.EVM.FundingWaitTimeout, m, l)

	mon := monitor.New().Register(types.NamespaceEIP155, monitor.NewEthereumChecker(func(id *big.Int) (monitor.EVMBackend, bool) {
		client, ok := chains.Lookup(id)
		if !ok {
			return nil, false
		}
		return client, true
	}, l))

	var btcAdapter *signer.BitcoinAdapter
	btcBackend, err := openBitcoin(ctx, cfg, l)
	if err != nil {
		return errors.Wrap(err, "bitcoin backend")
	}
	if btcBackend != nil {
		if btcAdapter, err = signer.NewBitcoinAdapter(cfg.Bitcoin.Network); err != nil {
			return err
		}
		mon.Register(types.NamespaceBIP122, monitor.NewBitcoinChecker(btcBackend, l))
	}

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan types.Event, 64)
	d := dispatch.New(m, l)
	derivationChainIDs := map[types.Origin]string{}

	// origins
	if cfg.Solana.Enabled {
		programID, err := solanago.PublicKeyFromBase58(cfg.Solana.ProgramID)
		if err != nil {
			return errors.Wrap(err, "solana.program_id")
		}
		responder, err := solanago.PrivateKeyFromBase58(cfg.Solana.ResponderKey)
		if err != nil {
			return errors.Wrap(err, "solana.responder_key")
		}
		rpcClient := rpc.New(cfg.Solana.RPCURL)
		d.Register(types.OriginSolana, solana.NewClient(rpcClient, programID, responder, l.Named("solana")))
		derivationChainIDs[types.OriginSolana] = cfg.Solana.DerivationChainID

		feed := solana.NewFeed(cfg.Solana.WSURL, programID, rpcClient, &solana.Decoder{Slip44: cfg.Solana.Slip44}, cfg.Server.ReconnectDelay, l.Named("solana"))
		g.Go(func() error { return feed.Run(gctx, events) })
		log.Infow("Solana origin enabled", "program", programID.String(), "responder", responder.PublicKey().String())
	}

	if cfg.Substrate.Enabled {
		api, retriever, err := substrate.Connect(cfg.Substrate.URL)
		if err != nil {
			return err
		}
		client, err := substrate.NewClient(api, cfg.Substrate.SignerSeed, cfg.Substrate.SS58Format, l.Named("substrate"))
		if err != nil {
			return err
		}
		queue := dispatch.NewSerialQueue(client, cfg.Server.DispatchRetries, cfg.Server.DispatchRetryDelay, dispatch.StaleNonce, l.Named("substrate"))
		d.Register(types.OriginSubstrate, queue)
		derivationChainIDs[types.OriginSubstrate] = cfg.Substrate.DerivationChainID
		g.Go(func() error { return queue.Run(gctx) })

		decoder := &substrate.Decoder{Slip44: cfg.Substrate.Slip44, SS58Format: cfg.Substrate.SS58Format}
		feed := substrate.NewFeed(api.RPC.Chain, retriever, decoder, cfg.Server.ReconnectDelay, l.Named("substrate"))
		g.Go(func() error { return feed.Run(gctx, events) })
		log.Infow("Substrate origin enabled", "url", cfg.Substrate.URL, "responder", client.Address())
	}

	if len(derivationChainIDs) == 0 {
		log.Warn("No origin chain enabled, only the status API and poll loop will run")
	}

	server := workers.NewRelayServer(workers.Options{
		RootKey:            rootKey,
		DerivationChainIDs: derivationChainIDs,
		PollInterval:       cfg.Server.PollInterval,
		PollConcurrency:    cfg.Server.PollConcurrency,
	}, reg, mon, d, evmAdapter, btcAdapter, m, l)

	api := &handlers.API{
		Pending:       reg,
		RootPublicKey: &rootKey.PublicKey,
		BitcoinRPC:    btcBackend,
		FundingChains: fundingChains,
		Logger:        l.Named("http"),
	}
	if btcAdapter != nil {
		api.Bitcoin = btcAdapter
	}
	if fundingKey != nil {
		api.FundingAddress = crypto.PubkeyToAddress(fundingKey.PublicKey)
	}

	g.Go(func() error { return server.Worker_handleEvents(gctx, events) })
	g.Go(func() error { return server.Worker_processExecution(gctx) })
	g.Go(func() error { return workers.Worker_HTTP(gctx, cfg.Server.Listen, workers.NewRouter(api, nil), l) })

	err = g.Wait()
	log.Infow("Signature responder stopped", "error", err)
	return err
}
