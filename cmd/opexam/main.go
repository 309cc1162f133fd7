package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opeprep/opexam/internal/exam"
	appI18n "github.com/opeprep/opexam/internal/i18n"
	"github.com/opeprep/opexam/internal/ledger"
	"github.com/opeprep/opexam/internal/model"
	"github.com/opeprep/opexam/internal/qbank"
	"github.com/opeprep/opexam/internal/report"
	"github.com/opeprep/opexam/internal/webui"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opexam",
		Short: "Timed multiple-choice exam trainer",
	}

	serve := serveCmd()
	root.AddCommand(serve, historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `opexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local exam UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", "127.0.0.1:8080", "HTTP listen address")
	f.String("db", "data/exam_attempts.db", "SQLite attempt ledger path")
	f.StringP("bank", "b", "data/question_bank.xlsx", "Question bank xlsx path")
	f.String("password", "", "Shared exam password (or set OPEXAM_PASSWORD)")
	f.String("password-hash", "", "bcrypt hash of the shared password; takes precedence over --password")
	f.IntP("exam-size", "n", 100, "Questions per exam draw")
	f.Int("page-size", 20, "Questions per exam page")
	f.DurationP("duration", "d", 90*time.Minute, "Exam duration")
	f.StringP("lang", "l", "es", "UI language (en, es)")
	f.Bool("seed-missing", true, "Write a sample bank if the default source is missing")
	f.Int("sample-size", 200, "Questions in the generated sample bank")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a user's attempt history",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("db", "data/exam_attempts.db", "SQLite attempt ledger path")
	f.StringP("user", "u", "", "User whose attempts to list (required)")
	f.String("charts-dir", "", "Also render score/breakdown chart PNGs into this directory")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("OPEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("opexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/opexam")
	v.AddConfigPath("/etc/opexam")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if v.GetString("password") == "" && v.GetString("password-hash") == "" {
		return fmt.Errorf("exam password is required: set --password flag or OPEXAM_PASSWORD env var")
	}

	dbPath := v.GetString("db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Open the attempt ledger once; it is shared for the process lifetime.
	led, err := ledger.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	bankPath := v.GetString("bank")
	if err := seedBank(bankPath, v.GetBool("seed-missing"), v.GetInt("sample-size")); err != nil {
		return fmt.Errorf("seed question bank: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctrl := exam.New(exam.Config{
		DrawSize:   v.GetInt("exam-size"),
		PageSize:   v.GetInt("page-size"),
		Duration:   v.GetDuration("duration"),
		Secret:     v.GetString("password"),
		SecretHash: v.GetString("password-hash"),
		BankPath:   bankPath,
	}, led)

	h, err := webui.New(ctrl)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The countdown is authoritative here, not in the browser: one tick per
	// second recomputes remaining time from the wall clock and fires the
	// timeout submission at most once.
	go runTimer(ctx, ctrl)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"bank", bankPath,
		"db", dbPath,
		"lang", lang,
		"exam_size", v.GetInt("exam-size"),
		"page_size", v.GetInt("page-size"),
		"duration", v.GetDuration("duration"),
	)

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runTimer(ctx context.Context, ctrl *exam.Controller) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctrl.Tick() {
				slog.Info("exam timed out, auto-submitted", "user", ctrl.User())
			}
		}
	}
}

func seedBank(path string, seed bool, n int) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if !seed {
		slog.Warn("question bank missing and seeding disabled", "path", path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return qbank.WriteSample(path, n)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	led, err := ledger.Open(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	user := v.GetString("user")
	attempts, err := led.Query(user)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	if len(attempts) == 0 {
		fmt.Printf("no attempts recorded for %s\n", user)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDAY\tTIMESTAMP\tSCORE\tCORRECT\tWRONG")
	for i, a := range attempts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%d\t%d\n",
			i+1, a.Day, a.Timestamp.Format("2006-01-02 15:04:05"), a.Score, a.Correct, a.Wrong)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	chartsDir := v.GetString("charts-dir")
	if chartsDir == "" {
		return nil
	}
	if err := os.MkdirAll(chartsDir, 0o755); err != nil {
		return fmt.Errorf("create charts dir: %w", err)
	}
	for name, render := range map[string]func(w io.Writer, a []model.Attempt) error{
		"scores.png":    report.ScoreChart,
		"breakdown.png": report.BreakdownChart,
	} {
		f, err := os.Create(filepath.Join(chartsDir, name))
		if err != nil {
			return err
		}
		if err := render(f, attempts); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		slog.Info("wrote chart", "path", filepath.Join(chartsDir, name))
	}
	return nil
}
