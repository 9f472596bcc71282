// Package cmd implements the promowatch command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/promowatch/cmd/claim"
	"github.com/jonesrussell/promowatch/cmd/login"
	"github.com/jonesrussell/promowatch/cmd/scan"
	"github.com/jonesrussell/promowatch/cmd/watch"
	"github.com/jonesrussell/promowatch/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "promowatch",
		Short: "Watch social media for promocodes and redeem them",
		Long: `promowatch polls the case site's social media accounts for posts that
announce an image-embedded promocode, extracts the code, and redeems it
on the site before anyone else does.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are visible to Viper.
	_ = godotenv.Load()

	// Parse flags early so --debug is known before the logger exists.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("promowatch version %s\n", version)
		},
	})

	rootCmd.AddCommand(watch.Command())
	rootCmd.AddCommand(scan.Command())
	rootCmd.AddCommand(claim.Command())
	rootCmd.AddCommand(login.Command())
}

// version is set at build time via -ldflags.
var version = "dev"

// initConfig wires Viper: config file, environment variables, and defaults.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.SetEnvPrefix("PROMOWATCH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults carry a full setup.
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v\n", err)
	}

	if err := bindFlags(); err != nil {
		return err
	}
	return bindEnvVars()
}

func setDefaults() {
	viper.SetDefault("app.name", "promowatch")
	viper.SetDefault("app.environment", "production")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("watch.interval_minutes", config.DefaultScrapeIntervalMinutes)
	viper.SetDefault("watch.keyword", config.DefaultKeyword)
	viper.SetDefault("watch.cycle_timeout", config.DefaultCycleTimeout)
	viper.SetDefault("watch.auto_redeem", true)

	viper.SetDefault("sources.user_agent", config.DefaultUserAgent)
	viper.SetDefault("sources.instagram.enabled", false)
	viper.SetDefault("sources.x.enabled", false)
	viper.SetDefault("sources.facebook.enabled", false)
	viper.SetDefault("sources.discord.enabled", false)

	viper.SetDefault("claim.site_url", config.DefaultSiteURL)
	viper.SetDefault("claim.session_file", config.DefaultSessionFile)
	viper.SetDefault("claim.headless", true)
	viper.SetDefault("claim.step_timeout", config.DefaultClaimStepTimeout)

	viper.SetDefault("extractor.strategy", config.StrategyOCR)

	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.address", config.DefaultServerAddress)
}

func bindFlags() error {
	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}

// bindEnvVars maps the secrets and connection settings that arrive through
// the environment onto their config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":            {"APP_ENV"},
		"logger.level":               {"LOG_LEVEL"},
		"logger.encoding":            {"LOG_FORMAT"},
		"database.url":               {"DATABASE_URL"},
		"sources.x.auth_token":       {"X_AUTH_TOKEN"},
		"sources.x.csrf_token":       {"X_CSRF_TOKEN"},
		"sources.discord.auth_token": {"DISCORD_AUTH_TOKEN"},
		"notify.webhook_url":         {"DISCORD_WEBHOOK_URL"},
		"extractor.gemini_api_key":   {"GEMINI_API_KEY"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envs[0], err)
		}
	}
	return nil
}
