// Command daadapterd runs the data-availability adapter as a long-lived
// daemon: it starts the chain bridge's tip-height polling, exposes
// /healthz and /metrics, and opens the SQLite validity-condition store.
// It does not verify blocks itself, so it never writes to that store;
// the polled tip heights are not consumed.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/sovbtc/bitcoin-da/client"
	"github.com/sovbtc/bitcoin-da/server"
)

type daemonConfig struct {
	Network    string `long:"network" description:"mainnet, testnet, or regtest" default:"mainnet"`
	RollupName string `long:"rollupname" description:"rollup name tagged on every envelope this daemon builds or accepts" required:"true"`
	MempoolURL string `long:"mempoolurl" description:"mempool.space API root"`
	DBPath     string `long:"dbpath" description:"SQLite validity-condition store path" default:"daadapter.db"`
	SeedFile   string `long:"seedfile" description:"path to the raw wallet seed the sequencer keyring derives from" required:"true"`
	ListenAddr string `long:"listenaddr" description:"address the /healthz and /metrics HTTP server binds to" default:":9090"`
	LogLevel   string `long:"loglevel" description:"trace, debug, info, warn, error, or critical" default:"info"`
}

func main() {
	if err := daadapterdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func daadapterdMain() error {
	var cfg daemonConfig
	if _, err := flags.Parse(&cfg); err != nil {
		return err
	}

	seed, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("daadapterd: read seed file: %w", err)
	}

	backend := btclog.NewBackend(os.Stdout)
	clientLog := backend.Logger("CLNT")
	serverLog := backend.Logger("SRVR")
	level, ok := btclog.LevelFromString(cfg.LogLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	clientLog.SetLevel(level)
	serverLog.SetLevel(level)
	client.UseLogger(clientLog)
	server.UseLogger(serverLog)

	srv, err := server.New(&server.Config{
		Network:    cfg.Network,
		RollupName: cfg.RollupName,
		DBPath:     cfg.DBPath,
		Seed:       seed,
		MempoolURL: cfg.MempoolURL,
		ListenAddr: cfg.ListenAddr,
	})
	if err != nil {
		return fmt.Errorf("daadapterd: create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("daadapterd: start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return srv.Stop()
}
