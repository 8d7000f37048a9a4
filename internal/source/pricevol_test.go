package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/manifest"
)

const stooqCSV = `Date,Open,High,Low,Close,Volume
2026-03-09,5080.12,5101.40,5062.33,5098.21,0
2026-03-10,5098.21,5120.00,5090.10,5112.45,0
2026-03-11,5112.45,5118.75,5071.20,,0
`

func TestPriceVol_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(stooqCSV)) //nolint:errcheck
	}))
	defer srv.Close()

	src := &PriceVol{cfg: &config.Config{PriceVol: config.PriceVolConfig{
		BaseURL: srv.URL,
		Symbols: []string{"^spx"},
	}}}
	mf := manifest.New()

	records, err := src.Fetch(context.Background(), newSourceFetcher(), mf)
	require.NoError(t, err)

	// The row with an empty close never becomes a record.
	require.Len(t, records, 2)
	assert.Equal(t, []string{"^spx", "2026-03-09"}, []string(records[0].Identity))
	require.NotNil(t, records[0].Payload["close"])
	assert.InDelta(t, 5098.21, *records[0].Payload["close"], 1e-9)
	assert.Equal(t, "2026-03-10", records[1].DataDate)

	_, ok := mf.Pin("pricevol:^spx")
	assert.True(t, ok)
}

func TestPriceVol_FetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"day1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"day1"`)
		w.Write([]byte(stooqCSV)) //nolint:errcheck
	}))
	defer srv.Close()

	src := &PriceVol{cfg: &config.Config{PriceVol: config.PriceVolConfig{
		BaseURL: srv.URL,
		Symbols: []string{"^spx"},
	}}}
	mf := manifest.New()

	records, err := src.Fetch(context.Background(), newSourceFetcher(), mf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	pin, ok := mf.Pin("pricevol:^spx")
	require.True(t, ok)
	assert.Equal(t, `"day1"`, pin.ETag)

	// Unchanged upstream still counts as fetched, so no error with one symbol.
	records, err = src.Fetch(context.Background(), newSourceFetcher(), mf)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPriceVol_FetchAllSymbolsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := &PriceVol{cfg: &config.Config{PriceVol: config.PriceVolConfig{
		BaseURL: srv.URL,
		Symbols: []string{"^spx", "^vix"},
	}}}

	_, err := src.Fetch(context.Background(), newSourceFetcher(), manifest.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no symbols fetched")
}
