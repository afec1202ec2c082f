package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
	"pdfrag/internal/applog"
	"pdfrag/internal/config"
	"pdfrag/internal/display"
	"pdfrag/internal/domain"
	"pdfrag/internal/repl"
	"pdfrag/internal/service"
	"pdfrag/internal/tui"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitConfig   = 2
	exitNotFound = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt kills the process even while blocked on input.
		<-ctx.Done()
		stop()
	}()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	applog.Sync()
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, display.NewRenderer(display.Thresholds{}, 0).Error(err))
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return exitConfig
	case errors.Is(err, domain.ErrNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	cfg        *config.AppConfig
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pdfrag",
		Short:         "Ask questions about a folder of PDFs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (default ./config.yaml, then ~/.config/pdfrag/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(newIndexCmd(g), newChatCmd(g))
	return root
}

// load reads the config, starts logging and checks the credential before
// any other work.
func (g *globalFlags) load(chat bool) error {
	var (
		cfg  *config.AppConfig
		path = g.configPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindConfiguration, "load config", err)
		}
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	applog.Init(applog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	applog.Debug("[config] loaded", "path", path)

	if err := cfg.RequireCredential(chat); err != nil {
		return err
	}
	if g.configPath == "" {
		created, err := config.EnsureFile(path)
		if err != nil {
			applog.Warn("[config] could not write default config", "path", path, "error", err)
		} else if created {
			applog.Info("[config] wrote default config", "path", path)
		}
	}
	g.cfg = cfg
	return nil
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index <pdf-folder> [index-path]",
		Short: "Extract, chunk and embed every PDF in a folder into an index",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(false); err != nil {
				return err
			}
			out := g.cfg.Index.DefaultPath
			if len(args) == 2 {
				out = args[1]
			}

			ix, err := app.NewIndexer(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s ...\n", args[0])
			report, err := ix.IndexFolder(cmd.Context(), args[0], out)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, r *service.IndexReport) {
	w := cmd.OutOrStdout()
	for _, f := range r.Files {
		if f.Skipped {
			fmt.Fprintf(w, "  skipped %s: %s\n", f.Name, f.Reason)
			continue
		}
		fmt.Fprintf(w, "  %s: %d chunks\n", f.Name, f.Chunks)
	}
	fmt.Fprintf(w, "Indexed %d file(s), %d chunks (%d skipped) in %s. Saved to %s\n",
		r.Indexed, r.Chunks, r.Skipped, r.Elapsed.Round(time.Millisecond), r.OutDir)
}

func newChatCmd(g *globalFlags) *cobra.Command {
	var (
		useTUI bool
		topK   int
	)
	cmd := &cobra.Command{
		Use:   "chat [index-path]",
		Short: "Chat with the documents in an index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(true); err != nil {
				return err
			}
			dir := g.cfg.Index.DefaultPath
			if len(args) == 1 {
				dir = args[0]
			}

			chat, err := app.OpenChat(cmd.Context(), g.cfg, dir, topK)
			if err != nil {
				return err
			}
			defer chat.Close()

			if useTUI {
				return tui.Run(cmd.Context(), chat.Session, chat.Renderer, chat.Banner())
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.Banner())
			return repl.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), chat.Session, chat.Renderer)
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Use the full-screen terminal UI")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve per question (default from config)")
	return cmd
}
