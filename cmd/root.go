package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zjrosen/refcheck/internal/app"
	"github.com/zjrosen/refcheck/internal/config"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/watcher"
)

func init() {
	// Query the terminal background before Bubble Tea owns stdin so the
	// OSC 11 reply cannot leak into the input field.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	cfgUsed   string
)

var rootCmd = &cobra.Command{
	Use:   "refcheck",
	Short: "A terminal client for the reference verification service",
	Long: `refcheck submits papers to a reference verification service and follows
every running check live. Several checks can run at once; the history list
shows all of them and the detail pane follows the selected one.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .refcheck/config.yaml, then ~/.config/refcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log (also REFCHECK_DEBUG=1)")
	rootCmd.Flags().Bool("no-watch", false,
		"do not watch the state database for changes from other processes")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, cfgUsed, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	return initLogging(cmd)
}

func initLogging(cmd *cobra.Command) error {
	if !debugFlag && os.Getenv("REFCHECK_DEBUG") == "" {
		return nil
	}
	path := cfg.Log.Path
	if path == "" {
		path = "debug.log"
	}
	cleanup, err := log.InitWithTeaLog(path, "refcheck")
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	cobra.OnFinalize(cleanup)
	log.Info(log.CatConfig, "starting", "command", cmd.Name(), "config", cfgUsed)
	return nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, envOptions{live: true})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.tracker.Bootstrap(ctx); err != nil {
		// History is retried on demand; running checks were already rediscovered.
		log.ErrorErr(log.CatTracker, "bootstrap incomplete", err)
	}

	if noWatch, _ := cmd.Flags().GetBool("no-watch"); cfg.State.Watch && !noWatch && e.db != nil {
		w, err := watcher.New(e.db.Path())
		if err != nil {
			log.ErrorErr(log.CatWatcher, "watcher unavailable", err)
		} else {
			defer func() { _ = w.Stop() }()
			if err := w.Run(ctx, func() {
				if err := e.tracker.Rediscover(ctx); err != nil {
					log.ErrorErr(log.CatWatcher, "rediscovery failed", err)
				}
			}); err != nil {
				log.ErrorErr(log.CatWatcher, "watcher unavailable", err)
			}
		}
	}

	p := tea.NewProgram(app.New(ctx, e.tracker), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "refcheck %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
