package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONObject(t *testing.T) {
	t.Parallel()

	type obs struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	}
	type resp struct {
		Observations []obs `json:"observations"`
	}

	input := `{"observations":[{"date":"2024-01-02","value":"4742.83"},{"date":"2024-01-03","value":"."}]}`
	out, err := DecodeJSONObject[resp](strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, out.Observations, 2)
	assert.Equal(t, "4742.83", out.Observations[0].Value)
	assert.Equal(t, ".", out.Observations[1].Value)
}

func TestDecodeJSONObjectInvalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeJSONObject[map[string]any](strings.NewReader("{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode object")
}
