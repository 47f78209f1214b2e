package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/scenebridge/internal/discovery"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/ui"
)

var (
	scanTimeout  int
	instanceName string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find scenebridge servers on the local network",
	Long: `Browse mDNS for servers started with --discovery (or discovery.enabled
in the config file) and list their addresses, versions and enabled features.`,
	Example: `  # Browse for 3 seconds (default)
  scenebridge discover

  # Wait longer on busy networks
  scenebridge discover --timeout 10

  # Print only the address of one instance
  scenebridge discover --name studio`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Browse time in seconds")
	discoverCmd.Flags().StringVar(&instanceName, "name", "", "Stop at the first instance with this name and print its address")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(scanTimeout)*time.Second)
	defer cancel()

	scanner := discovery.NewScanner()
	out := cmd.OutOrStdout()

	if instanceName != "" {
		inst, err := scanner.Find(ctx, instanceName)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, inst.Address())
		return nil
	}

	if pretty() {
		fmt.Fprintf(out, "Browsing for scenebridge servers (timeout: %ds)...\n\n", scanTimeout)
	}
	instances, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if !pretty() {
		if instances == nil {
			instances = []*discovery.Instance{}
		}
		return writeJSON(out, instances)
	}
	fmt.Fprintln(out, ui.RenderInstances(instances))
	if len(instances) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.TableMutedStyle.Render("  Use 'scenebridge send --host <ip> --port <port> get_scene_info' to talk to one"))
	}
	return nil
}
