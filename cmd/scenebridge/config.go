package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/ui"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Example: `  # Default location
  scenebridge config init

  # Somewhere else, replacing an existing file
  scenebridge config init --config ./scenebridge.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the server would start with: the config file
merged over the defaults. Command-line flags are not applied and the
generated_content API key is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if pretty() {
		fmt.Fprintln(out, ui.NewSuccessResult("Config file written", ui.Param{Key: "Path", Value: path}).Render())
		return nil
	}
	fmt.Fprintln(out, path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if cfg.GeneratedContent.APIKey != "" {
		cfg.GeneratedContent.APIKey = "********"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
	return nil
}
