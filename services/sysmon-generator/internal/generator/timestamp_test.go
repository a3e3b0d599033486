package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTCToEpoch(t *testing.T) {
	ts, err := UTCToEpoch("2017-04-28 22:08:22.025")
	require.NoError(t, err)
	assert.Equal(t, uint64(1493417302025), ts)
}

func TestUTCToEpochEpochBoundary(t *testing.T) {
	ts, err := UTCToEpoch("1970-01-01 00:00:00.000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ts)
}

func TestUTCToEpochFormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"rfc3339 separator", "2017-04-28T22:08:22.025"},
		{"missing millis", "2017-04-28 22:08:22"},
		{"date only", "2017-04-28"},
		{"garbage", "not a timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UTCToEpoch(tt.value)
			require.Error(t, err)

			var formatErr *TimestampFormatError
			assert.ErrorAs(t, err, &formatErr)
		})
	}
}

func TestUTCToEpochRejectsPreEpoch(t *testing.T) {
	_, err := UTCToEpoch("1969-12-31 23:59:59.999")
	require.Error(t, err)

	var rangeErr *TimestampRangeError
	assert.ErrorAs(t, err, &rangeErr)
}
