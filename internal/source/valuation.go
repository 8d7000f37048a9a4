package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
	"github.com/oakmont-research/signal-cli/internal/scrape"
)

// JPXValuation ingests the Japan Exchange Group monthly index valuation
// workbook (PER, PBR, dividend yield per index).
type JPXValuation struct {
	cfg *config.Config
}

func (s *JPXValuation) Name() string        { return "jpx_valuation" }
func (s *JPXValuation) HistoryFile() string { return "jpx_valuation.json" }
func (s *JPXValuation) Cadence() Cadence    { return Monthly }
func (s *JPXValuation) Fields() []string    { return []string{"per", "pbr", "dividend_yield"} }

func (s *JPXValuation) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return MonthlySchedule(now, lastRun)
}

func (s *JPXValuation) History() history.Config {
	return history.Config{Ordering: history.OrderByDate}
}

func (s *JPXValuation) Fetch(ctx context.Context, f fetcher.Fetcher, mf *manifest.Manifest) ([]model.Record, error) {
	log := zap.L().With(zap.String("source", s.Name()))
	now := time.Now().UTC()
	month := now.Format("2006-01")

	url := s.cfg.JPX.WorkbookURL

	// Conditional fetch against the pinned ETag from the last run; the
	// workbook only changes monthly.
	var etag string
	if pin, ok := mf.Pin(s.Name()); ok && pin.URL == url {
		etag = pin.ETag
	}
	body, newETag, changed, err := f.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return nil, eris.Wrap(err, "jpx_valuation: download workbook")
	}
	if !changed {
		log.Info("workbook unchanged upstream, skipping", zap.String("etag", etag))
		return nil, nil
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return nil, eris.Wrap(err, "jpx_valuation: read workbook body")
	}

	tempDir := s.cfg.JPX.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "jpx_valuation: mkdir %s", tempDir)
	}
	path := filepath.Join(tempDir, "jpx_valuation.xlsx")
	defer os.Remove(path)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "jpx_valuation: write %s", path)
	}

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1})
	if err != nil {
		return nil, eris.Wrap(err, "jpx_valuation: read workbook")
	}
	if len(rows) == 0 {
		return nil, eris.New("jpx_valuation: workbook has no data rows")
	}

	// First remaining row is the column header.
	header, dataRows := rows[0], rows[1:]
	cols := map[string]int{}
	for i, h := range header {
		switch {
		case strings.Contains(h, "PER"):
			cols["per"] = i
		case strings.Contains(h, "PBR"):
			cols["pbr"] = i
		case strings.Contains(h, "Yield"):
			cols["dividend_yield"] = i
		}
	}
	for _, field := range s.Fields() {
		if _, ok := cols[field]; !ok {
			return nil, eris.Errorf("jpx_valuation: column for %s not found in header %v", field, header)
		}
	}

	wanted := map[string]bool{}
	for _, idx := range s.cfg.JPX.Indices {
		wanted[idx] = true
	}

	var records []model.Record
	for _, row := range dataRows {
		if len(row) == 0 {
			continue
		}
		index := strings.TrimSpace(row[0])
		if index == "" || (len(wanted) > 0 && !wanted[index]) {
			continue
		}
		payload := map[string]*float64{}
		for field, col := range cols {
			if col >= len(row) {
				payload[field] = nil
				continue
			}
			v, err := scrape.Number(row[col])
			if err != nil {
				log.Warn("unparseable cell", zap.String("index", index),
					zap.String("field", field), zap.Error(err))
				v = nil
			}
			payload[field] = v
		}
		records = append(records, model.Record{
			Identity: model.Identity{index, month},
			DataDate: month,
			RunTS:    now.Format(time.RFC3339),
			Payload:  payload,
		})
	}
	if len(records) == 0 {
		return nil, eris.Errorf("jpx_valuation: no configured indices found in workbook")
	}

	mf.Update(s.Name(), url, newETag, data, now)

	return records, nil
}
