// internal/cli/root.go
package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/danielraffel/tauri-webdriver/internal/config"
	"github.com/danielraffel/tauri-webdriver/internal/gateway"
	"github.com/danielraffel/tauri-webdriver/internal/logging"
)

// ErrBadArgs marks command line parse failures so main can exit 2
var ErrBadArgs = errors.New("bad arguments")

var (
	// Global flags
	flagPort     int
	flagHost     string
	flagLogLevel string

	// Global config
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tauri-wd",
	Short: "W3C WebDriver server for Tauri apps",
	Long: `tauri-wd exposes a W3C WebDriver endpoint for desktop applications
that embed a WKWebView. It launches the target application, discovers
the in-app automation agent's port from stdout, and translates each
WebDriver command into agent API calls.

Point WebDriverIO or Selenium at the server and pass the application
path in the tauri:options.binary capability.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config, then let flags override file values
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = flagPort
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = flagHost
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Server.LogLevel = flagLogLevel
		}
		return cfg.Validate()
	},
	RunE: runServe,
	// Silence usage and errors - we handle our own error output
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", config.DefaultPort,
		"WebDriver server port")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", config.DefaultHost,
		"WebDriver server host")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", config.DefaultLogLevel,
		"Log level: error, warn, info, debug, trace")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	})

	rootCmd.AddCommand(versionCmd)
}

// runServe starts the WebDriver server and blocks until a signal
func runServe(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("tauri-wd listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	}

	server := gateway.NewServer(cfg, logger.Std())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal %v, shutting down", sig)
		server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
