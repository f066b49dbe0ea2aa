package backfill

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/yitech/candlestore/adapter"
)

func TestLogLevel_MatchesErrorHandlingTable(t *testing.T) {
	tests := []struct {
		tag  adapter.ResponseTag
		want zerolog.Level
	}{
		{adapter.NoData, zerolog.DebugLevel},
		{adapter.RateLimited, zerolog.WarnLevel},
		{adapter.ServerError, zerolog.WarnLevel},
		{adapter.TimeoutError, zerolog.WarnLevel},
		{adapter.APIFailure, zerolog.ErrorLevel},
		{adapter.NotFound, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.tag))
		})
	}
}
