package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"unstack/internal/config"
	"unstack/internal/unstack/log"
)

// loadSettings loads the configuration file and applies the flags the user
// set on top of it. It also sets up logging.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("strict") {
		cfg.StrictBlocks, _ = flags.GetBool("strict")
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing, _ = flags.GetBool("keep-going")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("extended-arg-shift") {
		cfg.ExtendedArgShift, _ = flags.GetUint("extended-arg-shift")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.Setup(cfg.LogFile, cfg.Debug)
	// Library tracing follows --debug unless the environment chose a level.
	if cfg.Debug && os.Getenv("UNSTACK_LOG_LEVEL") == "" {
		os.Setenv("UNSTACK_LOG_LEVEL", "debug")
	}
	return cfg, nil
}
