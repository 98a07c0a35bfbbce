package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lumen.dev/node/chain"
	"lumen.dev/node/node"
	"lumen.dev/node/storage"
)

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	var addrs multiStringFlag

	cfg := defaults
	fs := flag.NewFlagSet("lumen-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addrCSV := fs.String("addresses", "", "bootstrap peers, comma-separated host:port")
	fs.Var(&addrs, "address", "single bootstrap peer host:port (repeatable)")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (mainnet/testnet/regtest)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: trace|debug|info|warn|error|critical")
	fs.IntVar(&cfg.TargetPeerSize, "target-peers", defaults.TargetPeerSize, "target connected peer count")
	fs.IntVar(&cfg.RequiredPeers, "required-peers", defaults.RequiredPeers, "peers required to agree before trusting a filter header")
	fs.BoolVar(&cfg.EnableV2Transport, "v2transport", defaults.EnableV2Transport, "BIP 324 transport setting; recorded in the config only, every connection uses plaintext V1")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch strings.ToLower(cfg.Network) {
	case "testnet":
		cfg.Params = chain.TestNetParams
	case "regtest":
		cfg.Params = chain.RegTestParams
	default:
		cfg.Params = chain.MainNetParams
	}
	cfg.Addresses = node.NormalizeAddrs(append([]string{*addrCSV}, addrs...)...)
	if len(cfg.Addresses) > 0 {
		cfg.ConnectionType = node.ConnectionStatic
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := node.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	if *dryRun {
		fmt.Fprintf(stdout, "%+v\n", cfg)
		return 0
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	headerStore, err := storage.OpenBoltHeaderStore(filepath.Join(cfg.DataDir, "headers.db"))
	if err != nil {
		fmt.Fprintf(stderr, "header store open failed: %v\n", err)
		return 2
	}
	defer headerStore.Close()

	peerStore, err := storage.OpenBoltPeerStore(filepath.Join(cfg.DataDir, "peers.db"))
	if err != nil {
		fmt.Fprintf(stderr, "peer store open failed: %v\n", err)
		return 2
	}
	defer peerStore.Close()

	var metrics *node.Metrics
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = node.NewMetrics(reg)
		go func() {
			if err := http.ListenAndServe(*metricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})); err != nil {
				fmt.Fprintf(stderr, "metrics server: %v\n", err)
			}
		}()
	}

	coordinator, client := node.NewCoordinator(cfg, headerStore, peerStore, metrics, stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		for line := range client.Info {
			fmt.Fprintln(stdout, line)
		}
	}()
	go func() {
		for line := range client.Warnings {
			fmt.Fprintln(stderr, line)
		}
	}()

	if err := coordinator.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(stderr, "coordinator exited: %v\n", err)
		return 1
	}
	return 0
}
