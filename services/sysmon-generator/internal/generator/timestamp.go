package generator

import "time"

// utcLayout is the fixed textual format Sysmon uses for UTC timestamps.
const utcLayout = "2006-01-02 15:04:05.000"

// UTCToEpoch converts a Sysmon UTC timestamp string to epoch milliseconds.
// The string carries no zone information and is always UTC; no adjustment
// is applied.
func UTCToEpoch(utc string) (uint64, error) {
	t, err := time.ParseInLocation(utcLayout, utc, time.UTC)
	if err != nil {
		return 0, &TimestampFormatError{Value: utc, Err: err}
	}

	ms := t.UnixMilli()
	if ms < 0 {
		return 0, &TimestampRangeError{Millis: ms}
	}
	return uint64(ms), nil
}
