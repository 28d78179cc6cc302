package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/fang"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/lsp"
	"github.com/lunatype/luna/pkg/session"
	"github.com/lunatype/luna/pkg/workspace"
)

// Config holds the application configuration
type Config struct {
	Debug      bool
	LSP        bool
	LSPLogFile string
	Workers    int
}

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "luna [flags] [directory]",
		Short: "Luna static analyzer for Lua",
		Long: `Luna infers and checks types across a workspace of Lua sources.
It follows require() edges from the configured start files and reports
type conflicts, unbound names, and syntax errors.`,
		Example: `  # Check the current directory
  luna

  # Check a workspace
  luna ./my-project

  # Run as a language server over stdio
  luna --lsp

  # Check with debug logging enabled
  luna --debug ./my-project`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.LSP {
				return runLSP(cmd.Context(), cfg)
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runCheck(cmd.Context(), dir, cfg)
		},
	}

	rootCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&cfg.LSP, "lsp", false, "Run in Language Server Protocol mode")
	rootCmd.Flags().StringVar(&cfg.LSPLogFile, "lsp-log-file", "", "Path to LSP log file (stderr if not specified)")
	rootCmd.Flags().IntVar(&cfg.Workers, "workers", 0, "Number of concurrent checkers (default: number of CPUs)")

	if err := fang.Execute(context.Background(), rootCmd,
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{Level: level}))
}

func runCheck(ctx context.Context, dir string, cfg Config) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.Debug)
	slog.SetDefault(logger)

	ws, err := workspace.Open(root)
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Workers > 0 {
		opts = append(opts, session.WithWorkers(cfg.Workers))
	}
	sess := session.New(ws, opts...)
	defer sess.Close()

	snap, err := sess.CheckAll(ctx)
	if err != nil {
		return err
	}

	paths := snap.Paths()
	sort.Strings(paths)
	src := newSourceCache()
	var errors, warnings int
	for _, path := range paths {
		env, _ := snap.Env(path)
		for _, d := range env.Report.Diagnostics() {
			renderDiagnostic(os.Stdout, src, d)
			switch {
			case d.Severity >= diag.Error:
				errors++
			case d.Severity == diag.Warning:
				warnings++
			}
		}
	}

	fmt.Fprintln(os.Stdout, renderSummary(len(paths), errors, warnings))
	if snap.HasErrors() {
		return fmt.Errorf("%d error(s) found", errors)
	}
	return nil
}

func runLSP(ctx context.Context, cfg Config) error {
	var logDest io.Writer
	if cfg.LSPLogFile != "" {
		logFile, err := os.Create(cfg.LSPLogFile)
		if err != nil {
			return fmt.Errorf("open lsp log: %w", err)
		}
		defer logFile.Close() //nolint:errcheck
		logDest = logFile
	} else {
		logDest = os.Stderr
	}

	logger := newLogger(logDest, cfg.Debug)
	slog.SetDefault(logger)

	logger.InfoContext(ctx, "starting LSP server")

	handler := lsp.NewHandler(logger)
	srv := jrpc2.NewServer(handler, &jrpc2.ServerOptions{
		AllowPush: true,
		Logger:    func(text string) { logger.Debug(text) },
	})

	// Store server reference in handler for push notifications
	handler.SetServer(srv)

	srv.Start(channel.LSP(stdrwc{}, stdrwc{}))

	logger.InfoContext(ctx, "LSP server closed", "error", srv.Wait())
	return nil
}

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
