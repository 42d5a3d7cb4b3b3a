// The maintenance binary runs one housekeeping pass and exits: it
// sweeps expired rows and, when archiving is enabled, exports aged
// audit history to object storage. Meant for cron or a one-off run.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/archive"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/maintenance"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	store, err := repomanager.NewPostgresStore(cfg.DatabaseDSN)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	defer store.Close()

	janitor := maintenance.NewJanitor(store, cfg, logger)
	if err := janitor.RunOnce(ctx); err != nil {
		logger.Error(ctx, "sweep finished with errors", "error", err)
	}

	if cfg.ArchiveEnabled {
		exporter := archive.NewExporter(store, cfg, logger)
		n, err := exporter.Export(ctx)
		if err != nil {
			logger.Error(ctx, "audit export failed", "error", err)
			return
		}
		logger.Info(ctx, "audit export finished", "rows", n)
	}
}
