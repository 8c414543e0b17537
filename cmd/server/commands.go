package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"sigresponder/BTCRPC"
	"sigresponder/derivation"
	"sigresponder/signer"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deriveCommand(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	root, err := cfg.RootKey()
	if err != nil {
		return err
	}

	pub, err := derivation.DerivePublicKey(&root.PublicKey, c.String("chain-id"), c.String("predecessor"), c.String("path"))
	if err != nil {
		return err
	}

	out := map[string]string{
		"publicKey":  hexutil.Encode(crypto.FromECDSAPub(pub)),
		"evmAddress": crypto.PubkeyToAddress(*pub).Hex(),
	}
	if btc, err := signer.NewBitcoinAdapter(cfg.Bitcoin.Network); err == nil {
		if addr, err := btc.Address(pub); err == nil {
			out["bitcoinAddress"] = addr
		}
	}
	return printJSON(out)
}

func bitcoinBackend(c *cli.Context) (BTCRPC.Backend, error) {
	cfg, l, err := setup(c)
	if err != nil {
		return nil, err
	}
	backend, err := openBitcoin(c.Context, cfg, l)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("bitcoin.backend is not configured")
	}
	return backend, nil
}

func bitcoinUtxosCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	backend, err := bitcoinBackend(c)
	if err != nil {
		return err
	}
	utxos, err := backend.GetAddressUtxos(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(utxos)
}

func bitcoinBroadcastCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	backend, err := bitcoinBackend(c)
	if err != nil {
		return err
	}
	txid, err := backend.BroadcastTransaction(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}

func bitcoinMineCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	blocks, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "blocks")
	}
	backend, err := bitcoinBackend(c)
	if err != nil {
		return err
	}
	hashes, err := backend.MineBlocks(c.Context, blocks, c.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(hashes)
}

func bitcoinFundCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	amount, err := strconv.ParseFloat(c.Args().Get(1), 64)
	if err != nil {
		return errors.Wrap(err, "amount")
	}
	backend, err := bitcoinBackend(c)
	if err != nil {
		return err
	}
	txid, err := backend.FundAddress(c.Context, c.Args().Get(0), amount)
	if err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}
