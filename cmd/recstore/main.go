// Command recstore serves customers and items over a JSON HTTP API,
// persisting them in a single embedded database file.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andreyvit/recstore"
	"github.com/andreyvit/recstore/app"
	"github.com/andreyvit/recstore/config"
	"github.com/andreyvit/recstore/logging"
	"github.com/andreyvit/recstore/model"
)

type flags struct {
	configFile string
	logLevel   string
	logFormat  string
	dbFile     string
	host       string
	port       int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "recstore: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var fl flags
	root := &cobra.Command{
		Use:           "recstore",
		Short:         "Serve customers and items from an embedded store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, &fl)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&fl.configFile, "config", "c", "", "YAML config file")
	pf.StringVar(&fl.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&fl.logFormat, "log-format", "", "log format: pretty, text, json")
	pf.StringVar(&fl.dbFile, "db", "", "database file (overrides config)")
	pf.StringVar(&fl.host, "host", "", "listen host (overrides config)")
	pf.IntVarP(&fl.port, "port", "p", -1, "listen port, 0 picks a free one (overrides config)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, &fl)
		},
	})

	var dumpAll bool
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the contents of the database file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dump(cmd, &fl, dumpAll)
		},
	}
	dumpCmd.Flags().BoolVar(&dumpAll, "stats", false, "include sequences and bucket statistics")
	root.AddCommand(dumpCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd)
		},
	})
	return root
}

// loadConfig layers flags over the config file over the defaults.
func loadConfig(fl *flags) (*config.Config, error) {
	cfg := config.Default()
	if fl.configFile != "" {
		var err error
		cfg, err = config.Load(fl.configFile)
		if err != nil {
			return nil, err
		}
	}
	if fl.logLevel != "" {
		cfg.Log.Level = fl.logLevel
	}
	if fl.logFormat != "" {
		cfg.Log.Format = fl.logFormat
	}
	if fl.dbFile != "" {
		cfg.DB.File = fl.dbFile
	}
	if fl.host != "" {
		cfg.Server.Host = fl.host
	}
	if fl.port >= 0 {
		cfg.Server.Port = fl.port
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	logger, _ := logging.New(lc)
	return logger, nil
}

func serve(cmd *cobra.Command, fl *flags) error {
	cfg, err := loadConfig(fl)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func dump(cmd *cobra.Command, fl *flags, all bool) error {
	cfg, err := loadConfig(fl)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.DB.File); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	store, err := recstore.Open(cfg.DB.File, model.Schema, recstore.Options{
		Logger:      logger,
		LockTimeout: cfg.DB.LockTimeout,
	})
	if err != nil {
		return err
	}
	df := recstore.DumpCollectionHeaders | recstore.DumpRows
	if all {
		df = recstore.DumpAll
	}
	err = store.Dump(cmd.OutOrStdout(), df)
	// nothing was changed, so there is nothing to commit
	return errors.Join(err, store.Close())
}

func printVersion(cmd *cobra.Command) {
	version, goVersion, revision, dirty := getBuildInfo()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "recstore %s\n", version)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
	fmt.Fprintf(w, "  Revision:   %s\n", revision)
	if dirty {
		fmt.Fprintf(w, "  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
