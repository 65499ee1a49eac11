package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"crowdsale/config"
	"crowdsale/integrations/exports"
	"crowdsale/native/crowdsale"
)

type quoter interface {
	Quotes() ([]*crowdsale.Quote, error)
}

// scheduleReports writes a Parquet settlement snapshot on cfg.Schedule.
func scheduleReports(cfg config.ReportsConfig, sale quoter, logger *slog.Logger) (func(), error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		path, err := writeReport(cfg.Dir, sale, time.Now().UTC())
		if err != nil {
			logger.Error("settlement report failed", "error", err)
			return
		}
		logger.Info("settlement report written", "path", path)
	}); err != nil {
		return nil, fmt.Errorf("reports schedule: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func writeReport(dir string, sale quoter, now time.Time) (string, error) {
	quotes, err := sale.Quotes()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("settlement-%s.parquet", now.Format("20060102T150405Z")))
	if err := exports.WriteSettlementParquet(path, exports.Rows(quotes, now)); err != nil {
		return "", err
	}
	return path, nil
}
