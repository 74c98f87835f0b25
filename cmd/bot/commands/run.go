package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maaaruch/tg-award-bot/internal/app"
	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/httpapi"
	"github.com/maaaruch/tg-award-bot/internal/metrics"
	"github.com/maaaruch/tg-award-bot/internal/storage"
	"github.com/maaaruch/tg-award-bot/internal/workflow"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Telegram and handle nominations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func openLedger(path string) (*sql.DB, *storage.Ledger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ledger := storage.NewLedger(db)
	if err := ledger.InitSchema(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return db, ledger, nil
}

func run(ctx context.Context) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	logger := log.Logger

	perms, err := cfg.Permissions()
	if err != nil {
		return fmt.Errorf("permissions: %w", err)
	}
	if perms.Size(domain.GroupNominator) == 0 || perms.Size(domain.GroupApprover) == 0 {
		logger.Warn().
			Int("nominators", perms.Size(domain.GroupNominator)).
			Int("approvers", perms.Size(domain.GroupApprover)).
			Msg("a permission group is empty, nobody can use that operation")
	}

	nominations, err := storage.OpenNominationStore(cfg.NominationsFile)
	if err != nil {
		return fmt.Errorf("open nominations: %w", err)
	}
	if err := nominations.Persist(); err != nil {
		return fmt.Errorf("write nominations: %w", err)
	}
	logger.Info().Str("path", cfg.NominationsFile).Int("nominations", nominations.Len()).Msg("nominations loaded")

	db, ledger, err := openLedger(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	flow := workflow.New(nominations, perms, logger, m)

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	bot.Debug = cfg.Debug
	logger.Info().Str("username", bot.Self.UserName).Msg("bot started")

	srvDone := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		router := httpapi.NewRouter(nominations, reg, logger.With().Str("component", "http").Logger())
		go func() {
			srvDone <- httpapi.Serve(ctx, cfg.HTTPAddr, router, cfg.ShutdownTimeout, logger)
		}()
	} else {
		close(srvDone)
	}

	app.New(bot, flow, nominations, ledger, m, logger).Run(ctx)

	if err, ok := <-srvDone; ok && err != nil {
		logger.Error().Err(err).Msg("status server")
	}
	logger.Info().Msg("shutting down")
	return nil
}
