package cli

import (
	"io"
	"os"

	"amc-progress-service/internal/config"
	"amc-progress-service/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// runtime carries the flags and the loaded config to every subcommand.
type runtime struct {
	configPath string
	port       string
	cfg        config.Config
	logCloser  io.Closer
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// A missing .env file is fine.
	_ = godotenv.Load()

	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	rt := &runtime{}
	cmd := &cobra.Command{
		Use:          "amc-progress",
		Short:        "Track AMC practice tests and host live buzzer rounds",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			if secret := os.Getenv("JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if url := os.Getenv("DATABASE_URL"); url != "" {
				cfg.Postgres.URL = url
			}
			closer, err := logging.Setup(logging.Options{
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.logCloser != nil {
				return rt.logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&rt.port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&rt.configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(
		NewStartCmd(rt),
		NewMigrateCmd(rt),
		NewGradeCmd(rt),
		NewStatsCmd(rt),
		NewProfileCmd(rt),
		NewBonusCmd(rt),
		NewAvatarCmd(rt),
		NewPrefsCmd(rt),
		NewResetCmd(rt),
		NewReportCmd(rt),
		NewSyncCmd(rt),
		NewPracticeCmd(rt),
		NewImportCmd(rt),
		NewLeaderboardCmd(rt),
		NewTokenCmd(rt),
	)
	return cmd
}
