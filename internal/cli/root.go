package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-desk/internal/broker"
	"options-desk/internal/config"
	"options-desk/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Broker broker.Broker
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize broker if credentials are available
	if cfg.Credentials.Zerodha.APIKey != "" {
		app.Broker = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:    cfg.Credentials.Zerodha.APIKey,
			APISecret: cfg.Credentials.Zerodha.APISecret,
			UserID:    cfg.Credentials.Zerodha.UserID,
		})
		logger.Debug().Msg("Zerodha broker initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "options-desk",
		Short: "Options Desk - multi-leg index option strategies backend",
		Long: `Options Desk is the backend for a NIFTY/SENSEX option strategy dashboard.

It serves a REST API for building portfolios of option legs, streaming live
prices from Zerodha Kite, and replaying strategies over recorded minute data.

Use 'options-desk help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-desk)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAuthCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newFeedCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Desk v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr())
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Database.Path)
	output.Printf("  Tick store:      %s\n", cfg.TickStore.Database)
	output.Printf("  Cache TTL:       %s\n", cfg.TickStore.CacheTTL)
	output.Printf("  Redis enabled:   %v\n", cfg.RedisEnabled())
	output.Println()

	output.Bold("Backtest")
	output.Printf("  Missing prices:  %s\n", cfg.Backtest.MissingPricePolicy)
	output.Printf("  Max legs:        %d\n", cfg.Backtest.MaxLegs)
	output.Println()

	output.Bold("Auth")
	output.Printf("  Token TTL:       %s\n", cfg.Auth.TokenTTL)

	return nil
}

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Broker session management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Start the broker OAuth login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				output.Error("Broker credentials are not configured")
				return nil
			}
			if err := app.Broker.Login(cmd.Context()); err != nil {
				output.Info("%v", err)
				return nil
			}
			output.Success("Session is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <request-token>",
		Short: "Complete the OAuth flow with the request token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				output.Error("Broker credentials are not configured")
				return nil
			}
			if err := app.Broker.CompleteLogin(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.Success("Login complete, session persisted")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Invalidate the broker session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				output.Error("Broker credentials are not configured")
				return nil
			}
			if err := app.Broker.Logout(context.Background()); err != nil {
				return err
			}
			output.Success("Logged out")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show broker session status",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			authenticated := app.Broker != nil && app.Broker.IsAuthenticated()
			if output.IsJSON() {
				output.JSON(map[string]bool{"authenticated": authenticated})
				return
			}
			if authenticated {
				output.Success("Authenticated")
			} else {
				output.Warning("Not authenticated")
			}
		},
	})

	return cmd
}
