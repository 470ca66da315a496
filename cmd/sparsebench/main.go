// The sparsebench CLI writes a sparse chunk at every density level from 1%
// up to a maximum, once densely and once as a structured chunk (encoded
// selection plus packed values), and prints how much storage each form
// takes with and without compression.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	structchunk "github.com/LifeboatLLC/SparseHDF5"
	"github.com/LifeboatLLC/SparseHDF5/stores"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:  "sparsebench",
		Usage: "Compare dense and structured storage of sparse chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML or JSON config file, flags override it", EnvVars: []string{"SPARSEBENCH_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "dims-chunk", Aliases: []string{"c"}, Usage: "Chunk dimensions RxC in KB units (default 10x100)"},
			&cli.IntFlag{Name: "max-percent", Aliases: []string{"m"}, Usage: "Maximal percentage of defined elements, 1 to 20 (default 10)"},
			&cli.IntFlag{Name: "space-select", Aliases: []string{"s"}, Usage: "Selection policy: 1 scattered rows, 2 random block, 3 contiguous rows (default 1)"},
			&cli.IntFlag{Name: "d-random", Aliases: []string{"d"}, Usage: "Generate random data (1, default) or compressible data (0)"},
			&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Print debug information (1) or not (0, default)"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed of the random selections and values (default 2)"},
			&cli.StringFlag{Name: "compressor", Usage: "Compressor id: gzip, zst or lz4 (default gzip)"},
			&cli.IntFlag{Name: "compression-level", Usage: "Compressor level (default 9)"},
			&cli.StringFlag{Name: "selection-format", Usage: "Encoded selection format: blocks or roaring (default blocks)"},
			&cli.BoolFlag{Name: "verify", Usage: "Read every level back and compare the structured form with the dense one"},
			&cli.IntFlag{Name: "workers", Usage: "Density levels processed concurrently (default 1)"},
			&cli.StringFlag{Name: "store", Usage: "Store type: memory, local, bolt or minio (default memory)"},
			&cli.StringFlag{Name: "store-path", Usage: "Directory of a local store or file of a bolt store"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write store metrics to this file in text exposition format"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromContext(c)
			if err != nil {
				return errors.Wrap(err, "invalid argument")
			}
			if err := setUpLogging(c.String("log-level"), cfg.Verbose); err != nil {
				return errors.Wrap(err, "failed to prepare logger")
			}
			return run(c.Context, cfg, c.String("metrics-file"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("sparsebench failed")
	}
}

func configFromContext(c *cli.Context) (structchunk.Config, error) {
	cfg := structchunk.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = structchunk.LoadConfig(path); err != nil {
			return cfg, errors.Wrap(err, "load config")
		}
	}
	if c.IsSet("dims-chunk") {
		cfg.ChunkDims = c.String("dims-chunk")
	}
	if c.IsSet("max-percent") {
		cfg.MaxPercent = c.Int("max-percent")
	}
	if c.IsSet("space-select") {
		cfg.Policy = c.Int("space-select")
	}
	if c.IsSet("d-random") {
		cfg.DataRandom = c.Int("d-random")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Int("verbose")
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Uint64("seed")
	}
	if c.IsSet("compressor") {
		cfg.Compressor.ID = c.String("compressor")
	}
	if c.IsSet("compression-level") {
		cfg.Compressor.Level = c.Int("compression-level")
	}
	if c.IsSet("selection-format") {
		cfg.SelectionFormat = c.String("selection-format")
	}
	if c.IsSet("verify") {
		cfg.Verify = c.Bool("verify")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("store") {
		cfg.Store.Type = c.String("store")
	}
	if c.IsSet("store-path") {
		cfg.Store.Path = c.String("store-path")
	}
	return cfg, cfg.Validate()
}

func setUpLogging(level string, verbose int) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	if verbose == 1 && lvl < logrus.DebugLevel {
		lvl = logrus.DebugLevel
	}
	logrus.SetLevel(lvl)
	return nil
}

func run(ctx context.Context, cfg structchunk.Config, metricsFile string) error {
	s, closeStore, err := stores.Open(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	m, err := structchunk.NewStoreMetrics(reg)
	if err != nil {
		return errors.Wrap(err, "register metrics")
	}

	policy, _ := structchunk.ParsePolicy(cfg.Policy)
	extent, _ := cfg.Extent()
	logrus.Infof("chunk dimensions: %s", extent)
	logrus.Infof("selection: %s", policy.Human())

	r, err := structchunk.NewRunner(cfg, structchunk.NewInstrumentedStore(s, m))
	if err != nil {
		return err
	}
	reports, err := r.Run(ctx)
	if err != nil {
		return err
	}
	cm, err := r.BlockStore().Consolidate(ctx)
	if err != nil {
		return errors.Wrap(err, "consolidate metadata")
	}
	logrus.Debugf("consolidated %d blocks", len(cm.Blocks()))

	if err := structchunk.WriteSparseReport(os.Stdout, reports); err != nil {
		return errors.Wrap(err, "print report")
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}
