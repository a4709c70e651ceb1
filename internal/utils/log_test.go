package utils

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor_PrefixesCompleteLines(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	li.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	n, err := li.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "line=1 time=2025-01-01T00:00:00Z first\n", out.String())

	_, err = li.Write([]byte("ond\r\nthird"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "line=2 time=2025-01-01T00:00:00Z second", lines[1])
	assert.Equal(t, "line=3 time=2025-01-01T00:00:00Z third", lines[2])
}

func TestMultiLogHandler_RespectsLevels(t *testing.T) {
	var debugOut, infoOut bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With("collection", "items")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("detail")
	logger.Info("sync pass")

	assert.Contains(t, debugOut.String(), "detail")
	assert.Contains(t, debugOut.String(), "sync pass")
	assert.NotContains(t, infoOut.String(), "detail")
	assert.Contains(t, infoOut.String(), "collection=items")

	grouped := slog.New(h.WithGroup("pass"))
	grouped.Info("done", "writes", 2)
	assert.Contains(t, infoOut.String(), "pass.writes=2")
}
