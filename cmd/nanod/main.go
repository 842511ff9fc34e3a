// Command nanod is the daemon entrypoint, built on the familiar
// command/flag layout (app := cli.NewApp(); app.Flags; app.Commands;
// app.Action) over github.com/urfave/cli/v2. It wires every
// consensus/block-processing component into one running process:
// ledger store, block processor, vote cache/router, active elections,
// confirming set, online reps, channel registry, and ascending
// bootstrap.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gonano/nanod/internal/bootstrap"
	"github.com/gonano/nanod/internal/confirming"
	"github.com/gonano/nanod/internal/election"
	"github.com/gonano/nanod/internal/nanoconfig"
	"github.com/gonano/nanod/internal/nanolog"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/netinfo"
	"github.com/gonano/nanod/internal/onlinereps"
	"github.com/gonano/nanod/internal/unchecked"
	"github.com/gonano/nanod/internal/votecache"
	"github.com/gonano/nanod/internal/voterouter"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a nanod TOML config file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the ledger database (\"memory\" for an in-memory store)",
		Value: "./nanod-data",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "loglevel",
		Usage: "Log level: trace, debug, info, warn, error, crit",
		Value: "info",
	}
	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Emit structured JSON logs instead of the terminal format",
	}
)

func main() {
	app := &cli.App{
		Name:  "nanod",
		Usage: "Nano-style consensus and block-processing daemon",
		Flags: []cli.Flag{configFlag, dataDirFlag, logLevelFlag, jsonLogsFlag},
		Action: func(c *cli.Context) error {
			return runDaemon(c)
		},
		Commands: []*cli.Command{
			dumpConfigCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nanod:", err)
		os.Exit(1)
	}
}

var dumpConfigCommand = &cli.Command{
	Name:  "dumpconfig",
	Usage: "Print the effective configuration as TOML and exit",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return nanoconfig.WriteConfig("/dev/stdout", cfg)
	},
}

func loadConfig(c *cli.Context) (nanoconfig.Config, error) {
	if path := c.String(configFlag.Name); path != "" {
		var cfg nanoconfig.Config
		if err := nanoconfig.LoadConfig(path, &cfg); err != nil {
			return nanoconfig.Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
		return cfg, nil
	}
	cfg := nanoconfig.DefaultConfig()
	if dir := c.String(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func setupLogging(c *cli.Context) {
	level := parseLevel(c.String(logLevelFlag.Name))
	if c.Bool(jsonLogsFlag.Name) {
		nanolog.SetDefault(nanolog.New(nanolog.JSONHandlerWithLevel(os.Stderr, slog.Level(level))))
	} else {
		nanolog.SetDefault(nanolog.New(nanolog.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
	}
}

func parseLevel(s string) nanolog.Level {
	switch s {
	case "trace":
		return nanolog.LevelTrace
	case "debug":
		return nanolog.LevelDebug
	case "warn":
		return nanolog.LevelWarn
	case "error":
		return nanolog.LevelError
	case "crit":
		return nanolog.LevelCrit
	default:
		return nanolog.LevelInfo
	}
}

// runDaemon builds and runs every component until SIGINT/SIGTERM,
// mirroring cmd/geth's node.New()-then-Start()-then-wait-for-signal
// lifecycle.
func runDaemon(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	setupLogging(c)
	log := nanolog.Default()
	log.Info("starting nanod", "datadir", cfg.DataDir)

	store, err := openStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}

	stats := nanostats.NewRegistry()
	unc := unchecked.New(cfg.BlockProcessor.FullSize)
	processor := blockprocessorNew(store, unc, stats)
	processor.Start()
	defer processor.Stop()

	cache := votecache.New(cfg.VoteCache.MaxSize, cfg.VoteCache.MaxVoters, cfg.VoteCache.AgeCutoff)
	router := voterouter.New()

	tracker := onlinereps.New(cfg.OnlineReps, store.Weight)

	registry := netinfo.New(cfg.NetInfo, store.Weight)
	transport := &logOnlyTransport{log: log.With("component", "transport")}
	solicitor := netinfo.NewSolicitor(registry, transport, 32, cfg.Election.VoteBroadcastInterval)
	solicitor.Start()
	defer solicitor.Stop()

	aec := election.New(cfg.Election, election.Deps{
		Router:    router,
		Cache:     cache,
		QuorumFn:  tracker.QuorumDelta,
		WeightFn:  store.Weight,
		Solicitor: solicitor,
		Signer:    noLocalVoteSigner{},
		GetSaved: func(h nanotype.Hash) (*nanotype.SavedBlock, bool) {
			rt := store.BeginRead()
			defer rt.Discard()
			return store.GetBlock(rt, h)
		},
		Stats: stats,
	})
	aec.Start()
	defer aec.Stop()

	confirmed := make(chan election.ConfirmedEvent, 256)
	aec.OnConfirmed.Subscribe(confirmed)

	confirmingSet := confirming.New(store, stats)
	confirmingSet.Start()
	defer confirmingSet.Stop()

	cemented := make(chan confirming.CementedEvent, 256)
	confirmingSet.OnCemented.Subscribe(cemented)

	bs := bootstrap.New(cfg.Bootstrap, bootstrap.Deps{
		Store:     store,
		Processor: processor,
		Registry:  registry,
		Sender:    transport,
		Stats:     stats,
	})
	bs.Start()
	defer bs.Stop()

	processed := make(chan blockprocessorEvent, 256)
	subscribeProcessed(processor, processed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			log.Info("shutting down")
			return nil
		case ev := <-confirmed:
			confirmingSet.Add(ev.Winner.Hash())
		case ev := <-processed:
			handleProcessed(aec, ev)
		case ev := <-cemented:
			activateSuccessor(store, aec, ev.Section)
		case <-ctx.Done():
			return nil
		}
	}
}

// noLocalVoteSigner reports no local voting weight: this daemon has no
// wallet or voting key management, so it never produces its own
// votes, only routes and tallies votes received on the wire.
type noLocalVoteSigner struct{}

func (noLocalVoteSigner) Sign(hashes []nanotype.Hash, final bool) (nanotype.Vote, bool) {
	return nanotype.Vote{}, false
}
