package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anandk/vidya-server/internal/app"
	"github.com/anandk/vidya-server/internal/auth"
	"github.com/anandk/vidya-server/internal/config"
	"github.com/anandk/vidya-server/internal/log"
	"github.com/anandk/vidya-server/internal/roomengine"
	"github.com/anandk/vidya-server/internal/roomengine/livekit"
	"github.com/anandk/vidya-server/internal/session"
	"github.com/anandk/vidya-server/internal/store/postgres"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vidya-server",
		Short: "Vidya voice tutoring backend",
		Long: `Backend for the Vidya voice tutor: issues LiveKit room tokens with
agent dispatch, persists conversation memory, and serves the admin API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newHashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (config.Config, error) {
	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	bootLogger.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited: %w", err)
			}
			color.Green("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("VIDYA_DATABASE_URL is not set")
			}

			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			color.Green("migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var configPath string
	var userID, userName string
	var ttl time.Duration
	var dispatch bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a room join token for debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if missing := cfg.MissingLiveKitVar(); missing != "" {
				return fmt.Errorf("%s is not set", missing)
			}

			engine := livekit.New(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
			token, err := engine.MintToken(roomengine.TokenRequest{
				Identity: userID,
				Name:     userName,
				Room:     session.RoomName(userID),
				TTL:      ttl,
				Dispatch: dispatch,
			})
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}

			color.Cyan("room:  %s", session.RoomName(userID))
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "debug_user", "user id to mint for")
	cmd.Flags().StringVar(&userName, "name", "Debug User", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token validity")
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "carry an agent dispatch")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Hash an admin password for the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Println(hash)
			return nil
		},
	}
}
