package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
}

func TestContextMissingValues(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, CorrelationIDFromContext(nil)) //nolint:staticcheck // nil context is part of the contract
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithCorrelationID(context.Background(), "corr-7")
	logger := WithContext(ctx, base)
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-7", entry["correlation_id"])
}

func TestWithContextNoFieldsReturnsOriginal(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithContext(context.Background(), base)
	logger.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasCorr := entry["correlation_id"]
	assert.False(t, hasCorr)
}
