// Package config handles unstack.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"unstack/internal/analysis"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "unstack.toml"

// Output formats accepted by Format.
var Formats = []string{"text", "json", "cbor", "markdown"}

var ErrInvalid = errors.New("invalid configuration")

// Config represents an unstack.toml configuration.
type Config struct {
	ExtendedArgShift uint   `toml:"extended_arg_shift" json:"extended_arg_shift" jsonschema:"title=Extended Argument Shift,description=Bits each EXTENDED_ARG prefix shifts its value by,minimum=1,maximum=30,default=16"`
	StrictBlocks     bool   `toml:"strict_blocks" json:"strict_blocks" jsonschema:"title=Strict Blocks,description=Treat block openers without a closer as errors"`
	Workers          int    `toml:"workers" json:"workers" jsonschema:"title=Workers,description=Code units reconstructed in parallel (0 means one per CPU),minimum=0"`
	KeepGoing        bool   `toml:"keep_going" json:"keep_going" jsonschema:"title=Keep Going,description=Report failed units and continue with the rest"`
	Format           string `toml:"format" json:"format" jsonschema:"title=Format,description=Output format,enum=text,enum=json,enum=cbor,enum=markdown,default=text"`
	Debug            bool   `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogFile          string `toml:"log_file" json:"log_file,omitempty" jsonschema:"title=Log File,description=Write application logs to this file instead of stderr"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-" json:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ExtendedArgShift: analysis.DefaultExtendedArgShift,
		Workers:          runtime.NumCPU(),
		Format:           "text",
	}
}

// Load reads the configuration at path, or unstack.toml in the working
// directory when path is empty and the file exists, then applies
// environment overrides. Keys the file sets replace the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(FileName); err == nil {
			path = FileName
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("cannot read %s: %w", path, err)
		}
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return cfg, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
		}
		cfg.Path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("UNSTACK_EXTENDED_ARG_SHIFT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: UNSTACK_EXTENDED_ARG_SHIFT: %v", ErrInvalid, err)
		}
		c.ExtendedArgShift = uint(n)
	}
	if v := os.Getenv("UNSTACK_STRICT_BLOCKS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: UNSTACK_STRICT_BLOCKS: %v", ErrInvalid, err)
		}
		c.StrictBlocks = b
	}
	if v := os.Getenv("UNSTACK_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: UNSTACK_WORKERS: %v", ErrInvalid, err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.ExtendedArgShift < 1 || c.ExtendedArgShift > analysis.MaxExtendedArgShift {
		return fmt.Errorf("%w: extended_arg_shift %d not in 1..%d", ErrInvalid, c.ExtendedArgShift, analysis.MaxExtendedArgShift)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	for _, f := range Formats {
		if c.Format == f {
			return nil
		}
	}
	return fmt.Errorf("%w: format %q (want one of %s)", ErrInvalid, c.Format, strings.Join(Formats, ", "))
}
