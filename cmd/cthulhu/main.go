package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cthulhu/internal/config"
	"cthulhu/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags override values loaded from the environment when set.
type globalFlags struct {
	env        string
	cronjobAPI string
	artemisAPI string
	logLevel   string
	archiveDB  string
	storeMode  string
}

func newRootCommand() *cobra.Command {
	var (
		flags globalFlags
		cfg   *config.Config
	)

	root := &cobra.Command{
		Use:           "cthulhu",
		Short:         "Operator console for the cron job platform",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.env != "" {
				os.Setenv("CTHULHU_ENV", flags.env)
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, loaded); err != nil {
				return err
			}
			setLogLevel(loaded.LogLevel)
			*cfg = *loaded
			return nil
		},
	}
	cfg = &config.Config{}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.env, "env", "", "environment selecting default backends (dev|prod)")
	pf.StringVar(&flags.cronjobAPI, "cronjob-api", "", "cronjob service base URL")
	pf.StringVar(&flags.artemisAPI, "artemis-api", "", "artemis runtime base URL")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringVar(&flags.archiveDB, "archive-db", "", "sqlite file for the error archive, \"off\" disables it")
	pf.StringVar(&flags.storeMode, "store-mode", "", "task paging mode (server|client)")

	root.AddCommand(
		newServeCommand(cfg),
		newTasksCommand(cfg),
		newRunsCommand(cfg),
		newTriggerCommand(cfg),
		newCleanupCommand(cfg),
		newValidateYAMLCommand(cfg),
	)
	return root
}

func (f globalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("cronjob-api") {
		cfg.CronjobBase = strings.TrimRight(f.cronjobAPI, "/")
	}
	if changed("artemis-api") {
		cfg.ArtemisBase = strings.TrimRight(f.artemisAPI, "/")
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("archive-db") {
		cfg.ArchivePath = f.archiveDB
		if f.archiveDB == "off" {
			cfg.ArchivePath = ""
		}
	}
	if changed("store-mode") {
		mode, err := store.ParseMode(f.storeMode)
		if err != nil {
			return err
		}
		cfg.StoreMode = mode
	}
	return nil
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
