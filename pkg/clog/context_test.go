package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_MergeAndRead(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	AddAttributes(ctx, map[string]any{
		"worker_id": "w-1",
		"nested":    map[string]any{"a": 1},
	})
	AddAttributes(ctx, map[string]any{
		"nested": map[string]any{"b": 2},
	})
	AddError(ctx, errors.New("boom"))

	assert.Equal(t, "w-1", GetAttribute[string](ctx, "worker_id"))
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, GetAttributes(ctx)["nested"])
	assert.EqualError(t, GetError(ctx), "boom")
}

func TestAttributes_NoBagIsNoop(t *testing.T) {
	ctx := context.Background()
	AddAttribute(ctx, "k", "v")

	assert.Nil(t, GetAttributes(ctx))
	assert.Equal(t, "", GetAttribute[string](ctx, "k"))
}

func TestAttributesHandler_AddsContextAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(NewAttributesHandler(slog.NewJSONHandler(buf, nil)))
	ctx := ContextWithSlog(context.Background())
	AddAttribute(ctx, "assignment_id", 42)

	logger.InfoContext(ctx, "started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "started", line["msg"])
	assert.EqualValues(t, 42, line["assignment_id"])
}

func TestHTTPStatusToLevel(t *testing.T) {
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(200))
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(499))
	assert.Equal(t, LevelWarn, HTTPStatusToLevel(412))
	assert.Equal(t, LevelError, HTTPStatusToLevel(503))
}
