package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wfunc/cardserver/cards"
	"github.com/wfunc/cardserver/config"
	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/monitor"
	"github.com/wfunc/cardserver/persistence"
	"github.com/wfunc/cardserver/server"
	"github.com/wfunc/cardserver/services"
)

const (
	releaseVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

type flags struct {
	config   string
	logLevel string
	cards    string
}

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "cardserver",
		Short:         "Realtime multiplayer fill-in-the-blank card game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&f.config, "config", "c", "", "path to config file (default ./config.yaml)")
	fs.StringVar(&f.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	fs.StringVar(&f.cards, "cards", "", "override cards.path")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("cardserver v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.LoadConfig(".", f.config)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.cards != "" {
		cfg.Cards.Path = f.cards
	}

	if err := logger.Init(cfg.Log.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	deck, err := cards.Load(cfg.Cards.Path)
	if err != nil {
		return err
	}
	logger.Log.Infof("Loaded %d prompts and %d answers from %s", deck.PromptCount(), deck.AnswerCount(), cfg.Cards.Path)

	// Initialize Database
	store, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	logger.Log.Infof("Game history store ready (driver: %s)", cfg.Database.Driver)

	history := services.NewHistoryService(store, 5*time.Second)
	defer history.Wait()

	gameServer, err := server.NewGameServer(server.Options{
		Config:   cfg,
		Deck:     deck,
		Recorder: history,
		History:  history,
		Monitor:  monitor.NewMonitor("cardserver"),
		Version:  releaseVersion,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- gameServer.Start()
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		logger.Log.Info("Shutting down game server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := gameServer.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
		logger.Log.Warnw("shutdown", "error", serr)
	}
	return err
}
