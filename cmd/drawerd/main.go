package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/cashdrawer/internal/drawerd"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL    = "database-url"
	flagStoreDriver    = "store-driver"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagJWTSigningKey  = "jwt-signing-key"
	flagJWTIssuer      = "jwt-issuer"
	flagTimeZone       = "time-zone"
	flagSweepInterval  = "sweep-interval"
	flagRequireSession = "require-session"
	flagRequestTimeout = "request-timeout"
	envPrefix          = "DRAWERD"
)

func main() {
	_ = godotenv.Load()
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "drawerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &drawerd.Config{}
	root := &cobra.Command{
		Use:           "drawerd",
		Short:         "Cash drawer session and reconciliation service (serves by default)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(flagDatabaseURL, "", "postgres:// URL or sqlite path (default sqlite:///tmp/cashdrawer.db)")
	root.PersistentFlags().String(flagStoreDriver, drawerd.StoreDriverGorm, "store implementation: gorm or pgx")
	root.PersistentFlags().String(flagTimeZone, "UTC", "IANA time zone that defines business dates")

	runServe := func(cmd *cobra.Command, args []string) error {
		return withLogger(func(logger *zap.Logger) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return drawerd.Serve(ctx, *cfg, logger)
		})
	}
	loadServeConfig := func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd, cfg, true)
	}
	root.PreRunE = loadServeConfig
	root.RunE = runServe
	addServeFlags(root)

	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the drawer HTTP API and run the stale session sweeper",
		PreRunE: loadServeConfig,
		RunE:    runServe,
	}
	addServeFlags(serve)

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Auto-close every active session from an earlier business date and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg, false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(logger *zap.Logger) error {
				result, err := drawerd.SweepOnce(cmd.Context(), *cfg, logger)
				for _, closed := range result.Closed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
						closed.Session.CashierID,
						closed.Session.SessionDate,
						closed.Breakdown.ExpectedBalance.StringFixed(2),
						closed.VarianceType,
					)
				}
				return err
			})
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg, false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(logger *zap.Logger) error {
				return drawerd.Migrate(cmd.Context(), *cfg, logger)
			})
		},
	}

	root.AddCommand(serve, sweep, migrate)
	return root
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 key used to verify cashier tokens (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected token issuer; empty disables the check")
	cmd.Flags().Duration(flagSweepInterval, drawerd.DefaultSweepInterval(), "interval between stale session sweeps; 0 disables the loop")
	cmd.Flags().Bool(flagRequireSession, false, "reject cash movements when the cashier has no active session")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request store timeout (default 5s)")
}

func withLogger(run func(logger *zap.Logger) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	return run(logger)
}

func loadConfig(cmd *cobra.Command, cfg *drawerd.Config, serving bool) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.TimeZone = strings.TrimSpace(v.GetString(flagTimeZone))
	if serving {
		cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
		cfg.AllowedOrigins = drawerd.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
		cfg.JWTSigningKey = v.GetString(flagJWTSigningKey)
		cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
		cfg.SweepInterval = v.GetDuration(flagSweepInterval)
		cfg.RequireSession = v.GetBool(flagRequireSession)
		cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	}
	return cfg.Validate(serving)
}
