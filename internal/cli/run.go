package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
)

// shutdownTimeout bounds the graceful shutdown of the metrics server.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database      string
	ConfigDir     string
	EngineConfig  string
	MetricsAddr   string
	WatchInterval time.Duration

	// Input overrides the request stream (for testing). Defaults to stdin.
	Input io.Reader

	// IDGenerator overrides the action id generator (for testing).
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and serve requests from stdin",
		Long: `Start the degraphmalizer engine and read requests from stdin, one JSON
object per line:

  {"type":"update","scope":"document","id":"/crm/contact/1"}

Each result document is printed on its own line as it resolves. The
configuration directory is watched and reloaded on change. The command
returns once stdin is exhausted and every request has resolved, or on
SIGINT/SIGTERM.

Example:
  degraphmalizer run --db ./dgm.db --config ./config
  degraphmalizer run --db ./dgm.db --config ./config --metrics-addr :9090 < requests.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.ConfigDir, "config", "", "directory of CUE index configuration (required)")
	cmd.Flags().StringVar(&opts.EngineConfig, "engine-config", "", "YAML engine configuration")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.WatchInterval, "watch-interval", config.DefaultWatchInterval, "how often to poll the configuration directory")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runEngine(cmd *cobra.Command, opts *RunOptions) error {
	engineCfg, err := loadEngineConfig(opts.EngineConfig)
	if err != nil {
		return err
	}

	slog.Info("loading configuration", "dir", opts.ConfigDir)
	provider, err := config.NewProvider(opts.ConfigDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	engOpts := []engine.Option{engine.FromConfig(engineCfg)}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, st, st, provider, engOpts...)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The engine loop and the watcher run until serve returns.
	background, bgCtx := errgroup.WithContext(ctx)
	loopCtx, stopLoops := context.WithCancel(bgCtx)
	background.Go(func() error {
		return eng.Run(loopCtx)
	})
	background.Go(func() error {
		return provider.Watch(loopCtx, opts.WatchInterval)
	})
	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metricsHandler()}
		background.Go(func() error {
			slog.Info("metrics listening", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		background.Go(func() error {
			<-loopCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	input := opts.Input
	if input == nil {
		input = cmd.InOrStdin()
	}
	out := newFormatter(cmd, opts.RootOptions)
	served, serveErr := serve(loopCtx, eng, input, out)

	eng.Stop()
	stopLoops()
	if err := background.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return WrapExitError(ExitFailure, "reading requests", serveErr)
	}

	slog.Info("engine stopped gracefully", "requests", served)
	return nil
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serve submits one request per input line and prints each result as it
// resolves. It returns once the input is exhausted and every submitted
// action has resolved, or when ctx ends.
func serve(ctx context.Context, eng *engine.Degraphmalizr, input io.Reader, out *OutputFormatter) (int, error) {
	var (
		mu      sync.Mutex // serializes output
		pending sync.WaitGroup
		served  int
	)
	emit := func(fn func() error) {
		mu.Lock()
		defer mu.Unlock()
		if err := fn(); err != nil {
			slog.Error("write result failed", "error", err)
		}
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			eng.Stop()
			pending.Wait()
			return served, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if ctx.Err() != nil {
					eng.Stop()
				}
				pending.Wait()
				return served, err
			}
			if len(line) == 0 || isBlank(line) {
				continue
			}
			req, err := parseRequestLine(line)
			if err != nil {
				emit(func() error {
					return out.Error(string(engine.ErrCodeInvalidRequest), err.Error(), string(line))
				})
				continue
			}
			served++
			a := eng.Submit(ctx, req, engine.LoggingStatus{})
			pending.Add(1)
			go func() {
				defer pending.Done()
				<-a.Done()
				res, _ := a.Result()
				emit(func() error { return out.Result(res) })
			}()
		}
	}
}

func isBlank(line []byte) bool {
	for _, b := range line {
		if b != ' ' && b != '\t' && b != '\r' {
			return false
		}
	}
	return true
}
