// Command wafel evaluates job scripts that describe crossing panels and
// print curves, cuts slot joints into the panels and writes G-code for the
// curves.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/chazu/wafel/pkg/config"
	"github.com/chazu/wafel/pkg/logx"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// errFailed is returned when a run reported errors. The errors themselves
// are already printed.
var errFailed = errors.New("run failed")

type options struct {
	configPath string
	logLevel   string
	jsonOut    bool
	dryRun     bool

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "wafel:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "wafel",
		Short:         "Cut slot joints into crossing panels and write G-code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file (.toml, .yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print the full result as JSON")

	run := &cobra.Command{
		Use:   "run <script>",
		Short: "Evaluate a script, cut joinery and write G-code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runFile(cmd.OutOrStdout(), args[0], false)
		},
	}
	run.Flags().BoolVar(&opts.dryRun, "dry-run", false, "do not write G-code files")

	check := &cobra.Command{
		Use:   "check <script>",
		Short: "Evaluate and validate a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runFile(cmd.OutOrStdout(), args[0], true)
		},
	}

	watch := &cobra.Command{
		Use:   "watch <script>",
		Short: "Run a script again every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return opts.watch(ctx, cmd.OutOrStdout(), args[0])
		},
	}
	watch.Flags().BoolVar(&opts.dryRun, "dry-run", false, "do not write G-code files")

	root.AddCommand(run, check, watch)
	return root
}

// setup loads the settings file and installs the logger.
func (o *options) setup(stderr io.Writer) error {
	o.cfg = config.Default()
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	level := o.cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logx.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logx.ParseLevel(level),
	})))
	return nil
}

func (o *options) runFile(w io.Writer, path string, checkOnly bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	app := NewApp(o.cfg)
	app.SetBaseDir(filepath.Dir(path))
	app.SetDryRun(o.dryRun)

	var result EvalResult
	if checkOnly {
		result = app.Check(string(source))
	} else {
		result = app.Evaluate(string(source))
	}
	if err := o.report(w, path, result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return errFailed
	}
	return nil
}

// report prints result as JSON or as a short summary.
func (o *options) report(w io.Writer, path string, r EvalResult) error {
	if o.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "%s:%d: error: %s\n", path, e.Line, e.Message)
		} else {
			fmt.Fprintf(w, "%s: error: %s\n", path, e.Message)
		}
	}
	for _, wn := range r.Warnings {
		fmt.Fprintf(w, "%s: warning: %s\n", path, wn.Message)
	}
	for _, p := range r.Panels {
		fmt.Fprintf(w, "panel %-12s notches %d  seams %d  upper %d/%d  lower %d/%d",
			p.Name, p.Notches, p.Seams, p.UpperVertices, p.UpperEdges, p.LowerVertices, p.LowerEdges)
		if p.Bored {
			fmt.Fprint(w, "  bored")
		}
		fmt.Fprintln(w)
	}
	for _, m := range r.Meshes {
		fmt.Fprintf(w, "mesh  %-12s %d triangles\n", m.Panel, len(m.Indices)/3)
	}
	if tp := r.Toolpath; tp != nil {
		fmt.Fprintf(w, "toolpath (%s): %d vertices, %d printed, %d travel\n",
			tp.Mode, tp.Vertices, tp.PrintedEdges, tp.TravelEdges)
		fmt.Fprintln(w, tp.Info)
		if tp.Output != "" {
			fmt.Fprintf(w, "wrote %s\n", tp.Output)
		}
	}
	return nil
}

// watchDebounce collapses the burst of events editors produce on save.
const watchDebounce = 150 * time.Millisecond

// watch runs the script once and again after every change until ctx ends.
// It watches the script's directory and filters events on the script path.
func (o *options) watch(ctx context.Context, w io.Writer, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	rerun := func() {
		if err := o.runFile(w, abs, false); err != nil && !errors.Is(err, errFailed) {
			logx.Logger().Error("watch: run failed", "err", err)
		}
	}
	rerun()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			logx.Logger().Info("watch: change detected", "script", path)
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logx.Logger().Warn("watch: watcher error", "err", err)
		}
	}
}
