package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
)

// PriceVol ingests daily closing levels for the configured index symbols
// from stooq's CSV download endpoint.
type PriceVol struct {
	cfg *config.Config
}

func (s *PriceVol) Name() string        { return "pricevol" }
func (s *PriceVol) HistoryFile() string { return "pricevol.json" }
func (s *PriceVol) Cadence() Cadence    { return Daily }
func (s *PriceVol) Fields() []string    { return []string{"close"} }

func (s *PriceVol) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return DailySchedule(now, lastRun)
}

func (s *PriceVol) History() history.Config {
	return history.Config{Ordering: history.OrderByDate}
}

func (s *PriceVol) Fetch(ctx context.Context, f fetcher.Fetcher, mf *manifest.Manifest) ([]model.Record, error) {
	log := zap.L().With(zap.String("source", s.Name()))
	now := time.Now().UTC()
	runTS := now.Format(time.RFC3339)

	var records []model.Record
	fetched := 0

	for _, symbol := range s.cfg.PriceVol.Symbols {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		url := fmt.Sprintf("%s/q/d/l/?s=%s&i=d", s.cfg.PriceVol.BaseURL, symbol)
		pinKey := s.Name() + ":" + symbol

		var etag string
		if pin, ok := mf.Pin(pinKey); ok && pin.URL == url {
			etag = pin.ETag
		}
		rc, newETag, changed, err := f.DownloadIfChanged(ctx, url, etag)
		if err != nil {
			log.Warn("skip symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if !changed {
			log.Info("symbol unchanged upstream, skipping", zap.String("symbol", symbol))
			fetched++
			continue
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn("skip symbol, read failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		header, rows, err := fetcher.ReadCSV(bytes.NewReader(body), fetcher.CSVOptions{
			HasHeader: true,
			TrimSpace: true,
		})
		if err != nil {
			log.Warn("skip symbol, bad csv", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		dateCol, closeCol := -1, -1
		for i, h := range header {
			switch strings.ToLower(h) {
			case "date":
				dateCol = i
			case "close":
				closeCol = i
			}
		}
		if dateCol < 0 || closeCol < 0 {
			log.Warn("skip symbol, unexpected columns", zap.String("symbol", symbol),
				zap.Strings("header", header))
			continue
		}

		for _, row := range rows {
			if len(row) <= dateCol || len(row) <= closeCol {
				continue
			}
			date := row[dateCol]
			v, err := strconv.ParseFloat(row[closeCol], 64)
			if err != nil {
				continue
			}
			records = append(records, model.Record{
				Identity: model.Identity{symbol, date},
				DataDate: date,
				RunTS:    runTS,
				Payload:  map[string]*float64{"close": model.Float(v)},
			})
		}

		mf.Update(pinKey, url, newETag, body, now)
		fetched++
	}

	if fetched == 0 {
		return nil, eris.Errorf("pricevol: no symbols fetched (%d attempted)", len(s.cfg.PriceVol.Symbols))
	}
	return records, nil
}
