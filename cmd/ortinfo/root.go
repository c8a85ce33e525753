package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amikos-tech/ortbind/ort"
)

// cliConfig carries the runtime settings every subcommand shares.
type cliConfig struct {
	LibPath         string `mapstructure:"lib_path"`
	CacheDir        string `mapstructure:"cache_dir"`
	RuntimeVersion  string `mapstructure:"runtime_version"`
	DisableDownload bool   `mapstructure:"disable_download"`
}

var (
	cfgFile   string
	activeCfg cliConfig
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ortinfo",
		Short: "Inspect the ONNX Runtime library, providers, and models",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd, cfgFile)
			if err != nil {
				return err
			}
			activeCfg = loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	cmd.PersistentFlags().String("lib", "", "Path to the ONNX Runtime shared library")
	cmd.PersistentFlags().String("cache-dir", "", "Directory for downloaded runtime archives")
	cmd.PersistentFlags().String("runtime-version", "", "Runtime release the bootstrap should install")
	cmd.PersistentFlags().Bool("disable-download", false, "Fail instead of downloading a missing runtime")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newProvidersCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newFetchCmd())

	return cmd
}

// loadConfig merges flags, environment, and an optional config file. Flag
// names map to config keys with dashes replaced by underscores; environment
// variables use the ORTINFO_ prefix, with ONNXRUNTIME_LIB_PATH honored for
// compatibility with the library's own locator.
func loadConfig(cmd *cobra.Command, configFile string) (cliConfig, error) {
	v := viper.New()

	v.SetDefault("lib_path", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("runtime_version", "")
	v.SetDefault("disable_download", false)

	if err := v.BindPFlag("lib_path", cmd.Flags().Lookup("lib")); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	if err := v.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir")); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	if err := v.BindPFlag("runtime_version", cmd.Flags().Lookup("runtime-version")); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	if err := v.BindPFlag("disable_download", cmd.Flags().Lookup("disable-download")); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix("ORTINFO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindEnv("lib_path", "ORTINFO_LIB_PATH", "ONNXRUNTIME_LIB_PATH"); err != nil {
		return cliConfig{}, fmt.Errorf("bind lib env vars: %w", err)
	}
	if err := v.BindEnv("cache_dir", "ORTINFO_CACHE_DIR", "ONNXRUNTIME_CACHE_DIR"); err != nil {
		return cliConfig{}, fmt.Errorf("bind cache env vars: %w", err)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cliConfig{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ortinfo")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return cliConfig{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// applyLibraryPath points the binding at the configured shared library before
// the first runtime call.
func applyLibraryPath(cfg cliConfig) error {
	if cfg.LibPath == "" {
		return nil
	}
	return ort.SetSharedLibraryPath(cfg.LibPath)
}

func bootstrapOptions(cfg cliConfig) []ort.BootstrapOption {
	var opts []ort.BootstrapOption
	if cfg.LibPath != "" {
		opts = append(opts, ort.WithBootstrapLibraryPath(cfg.LibPath))
	}
	if cfg.CacheDir != "" {
		opts = append(opts, ort.WithBootstrapCacheDir(cfg.CacheDir))
	}
	if cfg.RuntimeVersion != "" {
		opts = append(opts, ort.WithBootstrapVersion(cfg.RuntimeVersion))
	}
	if cfg.DisableDownload {
		opts = append(opts, ort.WithBootstrapDisableDownload(true))
	}
	return opts
}
