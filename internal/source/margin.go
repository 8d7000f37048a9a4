package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
	"github.com/oakmont-research/signal-cli/internal/scrape"
)

// TWSEMargin ingests the Taiwan Stock Exchange market-wide margin
// financing and short balance summary. The exchange serves the report as
// a Big5-encoded HTML table.
type TWSEMargin struct {
	cfg *config.Config
}

func (s *TWSEMargin) Name() string        { return "twse_margin" }
func (s *TWSEMargin) HistoryFile() string { return "twse_margin.json" }
func (s *TWSEMargin) Cadence() Cadence    { return Daily }
func (s *TWSEMargin) Fields() []string    { return []string{"margin_balance", "short_balance"} }

func (s *TWSEMargin) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return DailySchedule(now, lastRun)
}

func (s *TWSEMargin) History() history.Config {
	return history.Config{Ordering: history.OrderByDate}
}

func (s *TWSEMargin) Fetch(ctx context.Context, f fetcher.Fetcher, mf *manifest.Manifest) ([]model.Record, error) {
	now := time.Now().UTC()
	dataDate := now.Format("2006-01-02")
	url := fmt.Sprintf("%s/exchangeReport/MI_MARGN?response=html&date=%s&selectType=MS",
		s.cfg.TWSE.BaseURL, now.Format("20060102"))

	body, err := f.DownloadBytes(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "twse_margin: download")
	}

	html, err := scrape.Decode(body, s.cfg.TWSE.Charset)
	if err != nil {
		return nil, eris.Wrap(err, "twse_margin: decode charset")
	}

	table, err := scrape.ExtractTable(html, "table", 0)
	if err != nil {
		return nil, eris.Wrap(err, "twse_margin: extract table")
	}

	// Balance column: 今日餘額 (today's balance).
	balanceCol := -1
	for i, h := range table.Header {
		if strings.Contains(h, "今日餘額") {
			balanceCol = i
		}
	}
	if balanceCol < 0 {
		return nil, eris.Errorf("twse_margin: balance column not found in header %v", table.Header)
	}

	payload := map[string]*float64{
		"margin_balance": nil,
		"short_balance":  nil,
	}
	for _, row := range table.Rows {
		if len(row) <= balanceCol {
			continue
		}
		label := row[0]
		var field string
		switch {
		// 融資金額 is the margin financing balance in thousands of TWD.
		case strings.Contains(label, "融資金額"):
			field = "margin_balance"
		// 融券 is the short sale balance in trading units.
		case strings.Contains(label, "融券"):
			field = "short_balance"
		default:
			continue
		}
		v, err := scrape.Number(row[balanceCol])
		if err != nil {
			return nil, eris.Wrapf(err, "twse_margin: parse %s", field)
		}
		payload[field] = v
	}

	mf.Update(s.Name(), url, "", body, now)

	return []model.Record{{
		Identity: model.Identity{"TWSE", dataDate},
		DataDate: dataDate,
		RunTS:    now.Format(time.RFC3339),
		Payload:  payload,
	}}, nil
}
