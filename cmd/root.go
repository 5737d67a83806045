package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - fleet orchestration daemon",
	Long:  `Warden coordinates a fleet of worker agents: registration, health tracking, task queueing, and rule-governed dispatch.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.warden/warden.toml)")
}

func configPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "warden.toml"), nil
}

func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return config.LoadOrCreate(path)
}
