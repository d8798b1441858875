package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/CZERTAINLY/ProductMedia/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, false)

	parent := log.ContextAttrs(t.Context(), slog.Int64("product_id", 42))
	child := log.ContextAttrs(parent, slog.String("kind", "upload"))

	logger.InfoContext(parent, "parent")
	logger.DebugContext(child, "hidden")
	logger.With("worker", "w1").InfoContext(child, "child")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	require.Equal(t, "parent", first["msg"])
	require.EqualValues(t, 42, first["product_id"])
	require.NotContains(t, first, "kind")

	require.Equal(t, "child", second["msg"])
	require.EqualValues(t, 42, second["product_id"])
	require.Equal(t, "upload", second["kind"])
	require.Equal(t, "w1", second["worker"])
}
