package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/refcheck/internal/config"
)

var (
	configGlobal  bool
	configForce   bool
	serverWSURL   string
	serverTimeout time.Duration
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := config.LocalConfigPath
		if configGlobal {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("locating home directory: %w", err)
			}
			path = filepath.Join(home, ".config", "refcheck", "config.yaml")
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfgUsed != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfgUsed)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server <base-url>",
	Short: "Point refcheck at a verification service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server := cfg.Server
		server.BaseURL = args[0]
		server.WSURL = serverWSURL
		if cmd.Flags().Changed("timeout") {
			server.Timeout = serverTimeout
		}
		return saveConfig(cmd, func(path string) error { return config.SaveServer(path, server) })
	},
}

var configSetModelCmd = &cobra.Command{
	Use:   "set-model <provider>",
	Short: "Set the LLM provider used for new checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saveConfig(cmd, func(path string) error { return config.SaveModel(path, args[0]) })
	},
}

var configSetHistoryLimitCmd = &cobra.Command{
	Use:   "set-history-limit <n>",
	Short: "Set how many checks the history lists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		return saveConfig(cmd, func(path string) error { return config.SaveHistoryLimit(path, n) })
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configGlobal, "global", "g", false, "write ~/.config/refcheck/config.yaml")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configSetServerCmd.Flags().StringVar(&serverWSURL, "ws-url", "", "WebSocket origin (default: derived from the base URL)")
	configSetServerCmd.Flags().DurationVar(&serverTimeout, "timeout", 0, "unary request timeout")

	configCmd.AddCommand(configInitCmd, configShowCmd, configSetServerCmd, configSetModelCmd, configSetHistoryLimitCmd)
	rootCmd.AddCommand(configCmd)
}

// saveConfig writes to the file that was loaded, or the local config path
// when none was.
func saveConfig(cmd *cobra.Command, save func(path string) error) error {
	path := cfgUsed
	if path == "" {
		path = config.LocalConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", path)
	return nil
}
