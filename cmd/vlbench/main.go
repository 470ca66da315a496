// The vlbench CLI stores a set of variable-length elements once padded to
// the longest element and once as an offset/length index plus a blob, and
// prints how much storage each form takes with and without compression.
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
		Name:  "vlbench",
		Usage: "Compare padded and structured storage of variable-length elements",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML or JSON config file, flags override it", EnvVars: []string{"VLBENCH_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.IntFlag{Name: "n-elements", Aliases: []string{"n"}, Usage: "Number of variable-length elements to store (default 1000)"},
			&cli.IntFlag{Name: "max-length", Aliases: []string{"m"}, Usage: "Maximal length of a variable-length element (default 100)"},
			&cli.IntFlag{Name: "d-random", Aliases: []string{"d"}, Usage: "Generate random data (1, default) or compressible data (0)"},
			&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Print debug information (1) or not (0, default)"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed of the random lengths and values (default 20)"},
			&cli.StringFlag{Name: "compressor", Usage: "Compressor id: gzip, zst or lz4 (default gzip)"},
			&cli.IntFlag{Name: "compression-level", Usage: "Compressor level (default 9)"},
			&cli.BoolFlag{Name: "verify", Usage: "Read the structured form back and compare it with the generated elements"},
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
		logrus.WithError(err).Fatal("vlbench failed")
	}
}

func configFromContext(c *cli.Context) (structchunk.VLConfig, error) {
	cfg := structchunk.DefaultVLConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = structchunk.LoadVLConfig(path); err != nil {
			return cfg, errors.Wrap(err, "load config")
		}
	}
	if c.IsSet("n-elements") {
		cfg.NElements = c.Int("n-elements")
	}
	if c.IsSet("max-length") {
		cfg.MaxLength = c.Int("max-length")
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
	if c.IsSet("verify") {
		cfg.Verify = c.Bool("verify")
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

func run(ctx context.Context, cfg structchunk.VLConfig, metricsFile string) error {
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

	logrus.Infof("variable-length elements: %d of at most %d bytes", cfg.NElements, cfg.MaxLength)
	rep, err := structchunk.RunVL(ctx, cfg, structchunk.NewInstrumentedStore(s, m))
	if err != nil {
		return err
	}
	if err := structchunk.WriteVLReport(os.Stdout, rep); err != nil {
		return errors.Wrap(err, "print report")
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}
