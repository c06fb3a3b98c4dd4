package args

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/ragsearch/internal/config"
)

func TestParseQueryAndFlags(t *testing.T) {
	cfg := *config.New()
	var out bytes.Buffer

	a, err := parse(context.Background(), cfg, []string{"--mode", "multi", "--uuid", "abc", "--no-related", "what", "is", "go"}, nil, &out)
	require.NoError(t, err)

	assert.Equal(t, "what is go", a.Query)
	assert.Equal(t, "multi", a.Mode)
	assert.Equal(t, "abc", a.SearchUUID)
	assert.True(t, a.NoRelated)
	assert.Equal(t, cfg.Endpoint, a.Endpoint)
	assert.Equal(t, cfg.LogLevel, a.LogLevel)
}

func TestParseDefaultsFromConfig(t *testing.T) {
	cfg := *config.New()
	cfg.Endpoint = "https://search.example.com"
	cfg.Related = false
	cfg.Render.Format = "plain"

	a, err := parse(context.Background(), cfg, []string{"hello"}, nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "https://search.example.com", a.Endpoint)
	assert.True(t, a.NoRelated)
	assert.True(t, a.UsePlainText)
}

func TestParseStdin(t *testing.T) {
	a, err := parse(context.Background(), *config.New(), []string{"summarize:"}, strings.NewReader("line one\nline two\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "summarize:\n\nline one\nline two", a.Query)

	a, err = parse(context.Background(), *config.New(), nil, strings.NewReader("only stdin\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "only stdin", a.Query)
}

func TestParseWithoutQuery(t *testing.T) {
	_, err := parse(context.Background(), *config.New(), nil, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no query")
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parse(context.Background(), *config.New(), []string{"--help"}, nil, &out)
	require.ErrorIs(t, err, ErrHelp)
	assert.Contains(t, out.String(), "--no-related")
}

func TestApply(t *testing.T) {
	cfg := config.New()
	Arguments{Endpoint: "http://x", Mode: "multi", LogLevel: "debug", NoRelated: true, UsePlainText: true}.Apply(cfg)

	assert.Equal(t, "http://x", cfg.Endpoint)
	assert.Equal(t, "multi", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Related)
	assert.Equal(t, "plain", cfg.Render.Format)
}
