package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"dlclient/internal/app"
	"dlclient/internal/config"
	"dlclient/internal/render"
	"dlclient/internal/sandbox"
	"dlclient/internal/task"
	"dlclient/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:           "dlclient",
	Short:         "Client for a remote media download service",
	Long:          `dlclient resolves media URLs, starts downloads on a remote service, follows their progress and manages the time-limited history of produced files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		setupLogging(debug)
		return setupTracing(cmd, debug)
	},
}

// shutdownTracing flushes spans on exit. Set by setupTracing.
var shutdownTracing func(context.Context) error

var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Show metadata for a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download a URL and follow its progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List files the service still holds",
	RunE:  runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a file or playlist folder from the service",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the task recorded by the last fetch",
	RunE:  runCancel,
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or upload the service's cookies file",
}

var cookiesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether cookies are active",
	RunE:  runCookiesStatus,
}

var cookiesUploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a Netscape cookies file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookiesUpload,
}

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local simulated download service",
	RunE:  runSandbox,
}

func init() {
	rootCmd.AddCommand(infoCmd, fetchCmd, historyCmd, deleteCmd, cancelCmd, cookiesCmd, sandboxCmd)
	cookiesCmd.AddCommand(cookiesStatusCmd, cookiesUploadCmd)

	rootCmd.PersistentFlags().String("config", "config.yml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("base-url", "", "Service base URL (overrides config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to every confirmation")

	fetchCmd.Flags().String("format", task.FormatVideo, "video or audio")
	fetchCmd.Flags().String("quality", task.QualityBest, "best, 4k, 1080p or 720p")
	fetchCmd.Flags().Bool("subs", false, "Include subtitles")
	fetchCmd.Flags().String("sub-lang", "all", "Subtitle language, or all")
	fetchCmd.Flags().Bool("playlist", false, "Download the whole playlist")
	fetchCmd.Flags().Bool("no-save", false, "Do not save the finished file locally")

	historyCmd.Flags().Bool("watch", false, "Keep listing with live expiry countdowns")

	sandboxCmd.Flags().String("addr", ":5000", "Listen address")
	sandboxCmd.Flags().String("data-dir", "sandbox-data", "Directory for simulated artifacts")
	sandboxCmd.Flags().Duration("ttl", 4*time.Hour, "Artifact lifetime")
	sandboxCmd.Flags().Duration("step", 200*time.Millisecond, "Simulated progress step")
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := shutdownTracing(ctx); serr != nil {
			log.Warn().Err(serr).Msg("tracer shutdown failed")
		}
		cancel()
	}
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// setupTracing installs trace propagation so sandbox logs can be matched to
// client requests. With --debug finished spans are printed to stderr.
func setupTracing(cmd *cobra.Command, debug bool) error {
	service := "dlclient"
	if cmd.Name() == "sandbox" {
		service = "dlclient-sandbox"
	}
	var spans io.Writer
	if debug {
		spans = os.Stderr
	}
	shutdown, err := telemetry.Setup(spans, service)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	shutdownTracing = shutdown
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		cfg.AssumeYes = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command, saveArtifacts bool) (*app.App, *render.Console, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	console := render.NewConsole(cmd.OutOrStdout(), nil)
	var confirmer render.Confirmer = render.NewPrompt(cmd.InOrStdin(), cmd.OutOrStdout())
	if cfg.AssumeYes {
		confirmer = render.Always(true)
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{
		Renderer:      console,
		Confirmer:     confirmer,
		SaveArtifacts: saveArtifacts,
	})
	if err != nil {
		return nil, nil, err
	}
	return a, console, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, _, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	_, err = a.Submit(cmd.Context(), args[0])
	return err
}

func runFetch(cmd *cobra.Command, args []string) error {
	noSave, _ := cmd.Flags().GetBool("no-save")
	a, _, err := newApp(cmd, !noSave)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := a.Submit(ctx, args[0]); err != nil {
		return err
	}

	opts := task.Options{}
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.Quality, _ = cmd.Flags().GetString("quality")
	opts.Subtitles, _ = cmd.Flags().GetBool("subs")
	opts.SubtitleLang, _ = cmd.Flags().GetString("sub-lang")
	opts.Playlist, _ = cmd.Flags().GetBool("playlist")
	if err := a.Start(ctx, opts); err != nil {
		return err
	}

	go handleInterrupts(ctx, cancel, a)

	out, err := a.Wait(ctx)
	if err != nil {
		return err
	}
	switch out.State {
	case task.StateCompleted:
		return a.Settle(ctx)
	case task.StateCancelled:
		return errors.New("download cancelled")
	default:
		if out.Err != nil {
			return out.Err
		}
		return fmt.Errorf("download failed: %s", out.Status.Error)
	}
}

// handleInterrupts turns the first SIGINT into a confirmed cooperative
// cancel. A second one aborts.
func handleInterrupts(ctx context.Context, abort context.CancelFunc, a *app.App) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	requested := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if requested {
				log.Warn().Msg("aborting without waiting for the service")
				abort()
				return
			}
			err := a.Cancel(ctx)
			switch {
			case err == nil:
				requested = true
			case errors.Is(err, task.ErrDeclined):
			default:
				log.Warn().Err(err).Msg("cancel failed")
			}
		}
	}
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, console, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.RefreshHistory(cmd.Context()); err != nil {
		return err
	}
	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	console.ShowCountdowns(true)
	a.RunTracker(ctx)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, _, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Delete(cmd.Context(), args[0])
}

func runCancel(cmd *cobra.Command, _ []string) error {
	a, _, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	id, err := a.CancelRecorded(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", id)
	return nil
}

func runCookiesStatus(cmd *cobra.Command, _ []string) error {
	a, _, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	_, err = a.CookiesStatus(cmd.Context())
	return err
}

func runCookiesUpload(cmd *cobra.Command, args []string) error {
	a, _, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.UploadCookies(cmd.Context(), args[0])
}

func runSandbox(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	step, _ := cmd.Flags().GetDuration("step")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sandbox.Serve(ctx, addr, cfg.APIPrefix, sandbox.Options{
		DataDir:   dataDir,
		TTL:       ttl,
		StepDelay: step,
	})
}
