package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sigresponder",
		Usage: "Cross-chain signature responder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config.yml",
				Value:   "config.yml",
				EnvVars: []string{"RESPONDER_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Debug logging",
				EnvVars: []string{"RESPONDER_VERBOSE"},
			},
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Watch origin chains, sign requests and report execution results",
				Action: serveCommand,
			},
			{
				Name:  "derive",
				Usage: "Print the addresses derived for a requester",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "predecessor", Usage: "Requester address as seen by the origin chain", Required: true},
					&cli.StringFlag{Name: "path", Usage: "Derivation path"},
					&cli.StringFlag{Name: "chain-id", Usage: "Derivation chain id, e.g. polkadot:2034", Required: true},
				},
				Action: deriveCommand,
			},
			{
				Name:  "bitcoin",
				Usage: "Bitcoin backend helpers",
				Subcommands: []*cli.Command{
					{
						Name:      "utxos",
						Usage:     "List unspent outputs of an address",
						ArgsUsage: "<address>",
						Action:    bitcoinUtxosCommand,
					},
					{
						Name:      "broadcast",
						Usage:     "Broadcast a raw transaction",
						ArgsUsage: "<hex>",
						Action:    bitcoinBroadcastCommand,
					},
					{
						Name:      "mine",
						Usage:     "Mine blocks to an address (regtest node only)",
						ArgsUsage: "<blocks> <address>",
						Action:    bitcoinMineCommand,
					},
					{
						Name:      "fund",
						Usage:     "Send coins from the node wallet (regtest node only)",
						ArgsUsage: "<address> <amount>",
						Action:    bitcoinFundCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
