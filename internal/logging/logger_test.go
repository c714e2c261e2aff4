package logging_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/summer-academy/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, logging.ParseLevel("WARNING"))
	assert.Equal(t, zerolog.Disabled, logging.ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("bogus"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
}

func TestWithRequestID_TagsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := logging.WithLogger(context.Background(), &l)
	ctx = logging.WithRequestID(ctx, "req-42")

	logging.FromContext(ctx).Info().Msg("hello")

	assert.Equal(t, "req-42", logging.RequestID(ctx))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
}
