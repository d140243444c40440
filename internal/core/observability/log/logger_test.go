package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
		"fatal":   LevelFatal,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelSharedWithDerivedLoggers(t *testing.T) {
	logger := New(LevelInfo)
	child := logger.With(String("component", "test"))

	logger.SetLevel(LevelError)
	assert.Equal(t, LevelError, logger.GetLevel())
	assert.Equal(t, LevelError, child.GetLevel())
}

func TestFieldsConvertWithoutPanic(t *testing.T) {
	fields := []Field{
		Any("any", struct{ A int }{1}),
		Bool("bool", true),
		Duration("dur", time.Second),
		Float64("f", 1.5),
		Int("i", 3),
		Int64("i64", 4),
		String("s", "x"),
		Strings("ss", []string{"a", "b"}),
		Time("t", time.Unix(0, 0)),
		Uint64("u", 7),
		Error(errors.New("boom")),
	}
	zf := toZapFields(fields...)
	require.Len(t, zf, len(fields))
	assert.Equal(t, "error", zf[len(zf)-1].Key)

	assert.NotPanics(t, func() { Nop().Info("discarded", fields...) })
}

func TestProvideNeverNil(t *testing.T) {
	assert.NotNil(t, Provide())
}
