package source

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
)

// FRED ingests Federal Reserve Economic Data series observations.
type FRED struct {
	cfg *config.Config
}

func (s *FRED) Name() string        { return "fred" }
func (s *FRED) HistoryFile() string { return "fred.json" }
func (s *FRED) Cadence() Cadence    { return Daily }
func (s *FRED) Fields() []string    { return []string{"value"} }

func (s *FRED) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return DailySchedule(now, lastRun)
}

// History orders FRED logs by data date: the API returns observations
// newest-first, and the stats engine wants chronological series.
func (s *FRED) History() history.Config {
	return history.Config{Ordering: history.OrderByDate}
}

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func (s *FRED) Fetch(ctx context.Context, f fetcher.Fetcher, mf *manifest.Manifest) ([]model.Record, error) {
	log := zap.L().With(zap.String("source", s.Name()))
	now := time.Now().UTC()
	runTS := now.Format(time.RFC3339)

	limit := s.cfg.FRED.Limit
	if limit <= 0 {
		limit = 400
	}

	var records []model.Record
	fetched := 0

	for _, seriesID := range s.cfg.FRED.Series {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// The manifest pins the key-free URL; the API key never touches disk.
		pinURL := fmt.Sprintf("%s/series/observations?series_id=%s&file_type=json&sort_order=desc&limit=%d",
			s.cfg.FRED.BaseURL, seriesID, limit)
		url := pinURL + "&api_key=" + s.cfg.FRED.APIKey

		body, err := f.DownloadBytes(ctx, url)
		if err != nil {
			log.Warn("skip series", zap.String("series", seriesID), zap.Error(err))
			continue
		}

		resp, err := fetcher.DecodeJSONObject[fredResponse](bytes.NewReader(body))
		if err != nil {
			log.Warn("skip series, bad response", zap.String("series", seriesID), zap.Error(err))
			continue
		}

		for _, obs := range resp.Observations {
			// FRED encodes a missing observation as ".".
			if obs.Value == "." {
				continue
			}
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				log.Warn("skip observation", zap.String("series", seriesID),
					zap.String("date", obs.Date), zap.Error(err))
				continue
			}
			records = append(records, model.Record{
				Identity: model.Identity{seriesID, obs.Date},
				DataDate: obs.Date,
				RunTS:    runTS,
				Payload:  map[string]*float64{"value": model.Float(v)},
			})
		}

		mf.Update(s.Name()+":"+seriesID, pinURL, "", body, now)
		fetched++
	}

	if fetched == 0 {
		return nil, eris.Errorf("fred: no series fetched (%d attempted)", len(s.cfg.FRED.Series))
	}
	return records, nil
}
