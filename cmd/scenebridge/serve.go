package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/assets"
	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/handlers"
	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/metrics"
	"github.com/muurk/scenebridge/internal/rodin"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
	"github.com/muurk/scenebridge/internal/server"
	"github.com/muurk/scenebridge/internal/ui"
	"github.com/muurk/scenebridge/internal/version"
)

// Serve command flags
var (
	logLevel         string
	httpFlag         bool
	discoverFlag     bool
	assetLibrary     bool
	generatedContent bool
	noScripting      bool
	journalPath      string
	noWatch          bool
	assumeYes        bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the scene and start the command server",
	Long: `Start the scenebridge command server.

The server listens on localhost:9876 by default and answers one JSON response
per JSON command. Scene commands run one at a time on a single owner context.

The config file is watched while the server runs: changes to features,
scripting and logging.level apply immediately. Flags given on the command line
keep overriding the file after a reload.`,
	Example: `  # Start with the config file defaults
  scenebridge serve

  # Enable the asset library and the metrics/WebSocket listener
  scenebridge serve --asset-library --http

  # Advertise on the local network and keep a command journal
  scenebridge serve --discovery --journal ~/.local/state/scenebridge/journal.db

  # Refuse execute_code
  scenebridge serve --no-scripting`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logging.level")
	f.BoolVar(&httpFlag, "http", false, "Serve /metrics, /healthz and /ws on the http listener")
	f.BoolVar(&discoverFlag, "discovery", false, "Advertise the server over mDNS")
	f.BoolVar(&assetLibrary, "asset-library", false, "Enable the asset_library command group")
	f.BoolVar(&generatedContent, "generated-content", false, "Enable the generated_content command group")
	f.BoolVar(&noScripting, "no-scripting", false, "Make execute_code return an error")
	f.StringVar(&journalPath, "journal", "", "Record every command to this bbolt file")
	f.BoolVar(&noWatch, "no-watch", false, "Do not reload the config file when it changes")
	f.BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation for non-loopback hosts")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overlays the flags that were set explicitly onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if f.Changed("http") {
		cfg.HTTP.Enabled = httpFlag
	}
	if f.Changed("discovery") {
		cfg.Discovery.Enabled = discoverFlag
	}
	if f.Changed("asset-library") {
		cfg.Features.AssetLibrary = assetLibrary
	}
	if f.Changed("generated-content") {
		cfg.Features.GeneratedContent = generatedContent
	}
	if f.Changed("no-scripting") {
		cfg.Scripting.Enabled = !noScripting
	}
	if f.Changed("journal") {
		cfg.Journal.Path = journalPath
	}
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging.Level); err != nil {
		return err
	}
	defer logging.Sync()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if !isLoopback(cfg.Server.Host) && cfg.Scripting.Enabled {
		switch {
		case !assumeYes:
			if !ui.ConfirmRemoteExposure(os.Stdin, cmd.OutOrStdout(), addr) {
				return errors.New("aborted")
			}
		case pretty():
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewWarningResult("execute_code reachable from the network",
				ui.Param{Key: "Address", Value: addr},
				ui.Param{Key: "Confirmed", Value: "--yes"},
			).Render())
		}
	}

	flags := config.NewFlags(cfg.Features)
	m := metrics.New()
	exec := executor.New(executor.WithMetrics(m))
	r := router.New(flags)

	scripting := handlers.NewScripting(cfg.Scripting.Enabled, cfg.Scripting.GetTimeout())
	assetClient := assets.NewClient(cfg.AssetLibrary.BaseURL)
	assetClient.SetTimeout(cfg.AssetLibrary.GetTimeout())
	assetClient.DownloadDir = cfg.AssetLibrary.DownloadDir
	rodinClient := rodin.NewClient(cfg.GeneratedContent.BaseURL, cfg.GeneratedContent.APIKey)
	rodinClient.SetTimeout(cfg.GeneratedContent.GetTimeout())
	rodinClient.DownloadDir = cfg.GeneratedContent.DownloadDir

	if err := handlers.RegisterAll(r, handlers.Deps{
		Scene:     scene.New(),
		Features:  flags,
		Assets:    assetClient,
		Rodin:     rodinClient,
		Scripting: scripting,
	}); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	opts := []server.Option{
		server.WithMetrics(m),
		server.WithVersion(version.Version),
		server.WithFeatureList(flags.Enabled),
	}
	if cfg.Journal.Path != "" {
		j, openErr := journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, j.Close()) }()
		opts = append(opts, server.WithJournal(j))
	}

	srv := server.New(server.ConfigFrom(cfg), r, exec, opts...)

	ctx := cmd.Context()
	ownerDone := make(chan struct{})
	go func() {
		defer close(ownerDone)
		_ = exec.Run(ctx, cfg.Executor.GetTickInterval())
	}()

	if err := srv.Start(); err != nil {
		exec.Close()
		<-ownerDone
		return err
	}

	if !noWatch {
		w, err := config.Watch(path, func(nc *config.Config) {
			applyServeFlags(cmd, nc)
			if flags.Apply(nc.Features) {
				srv.RefreshAdvertisement()
			}
			scripting.Set(nc.Scripting.Enabled, nc.Scripting.GetTimeout())
			logging.SetLevel(nc.Logging.Level)
			logging.Info("Configuration reloaded",
				zap.Strings("features", flags.Enabled()),
				zap.Bool("scripting", nc.Scripting.Enabled),
				zap.String("log_level", logging.Level()),
			)
		})
		if err != nil {
			logging.Warn("Config hot reload unavailable", zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	if pretty() {
		fmt.Fprintln(cmd.OutOrStdout(), banner(cfg, srv, flags).Render())
		fmt.Fprintln(cmd.OutOrStdout(), ui.TableMutedStyle.Render("  Press Ctrl+C to stop"))
	}

	<-ctx.Done()
	logging.Info("Shutdown signal received")

	err = srv.Stop()
	exec.Close()
	<-ownerDone
	return err
}

func banner(cfg *config.Config, srv *server.Server, flags *config.Flags) *ui.Header {
	features := strings.Join(flags.Enabled(), ", ")
	if features == "" {
		features = "none"
	}
	scripting := "enabled"
	if !cfg.Scripting.Enabled {
		scripting = "disabled"
	}

	params := []ui.Param{
		{Key: "Address", Value: srv.Addr().String()},
		{Key: "Features", Value: features},
		{Key: "execute_code", Value: scripting},
	}
	if a := srv.HTTPAddr(); a != nil {
		params = append(params,
			ui.Param{Key: "Metrics", Value: "http://" + a.String() + "/metrics"},
			ui.Param{Key: "WebSocket", Value: "ws://" + a.String() + "/ws"},
		)
	}
	if cfg.Discovery.Enabled {
		params = append(params, ui.Param{Key: "mDNS", Value: cfg.Discovery.Instance})
	}
	if cfg.Journal.Path != "" {
		params = append(params, ui.Param{Key: "Journal", Value: cfg.Journal.Path})
	}
	return ui.NewHeader("scenebridge server", "scenebridge serve", params...)
}

// isLoopback reports whether host is localhost or a loopback IP. An empty
// host binds every interface.
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
