package generator

import "fmt"

// TimestampFormatError reports a UTC timestamp string that does not match
// the Sysmon `YYYY-MM-DD HH:MM:SS.fff` format.
type TimestampFormatError struct {
	Value string
	Err   error
}

func (e *TimestampFormatError) Error() string {
	return fmt.Sprintf("malformed utc timestamp %q: %v", e.Value, e.Err)
}

func (e *TimestampFormatError) Unwrap() error { return e.Err }

// TimestampRangeError reports a timestamp before the epoch. Telemetry with
// a time earlier than 1970 is invalid.
type TimestampRangeError struct {
	Millis int64
}

func (e *TimestampRangeError) Error() string {
	return fmt.Sprintf("utc timestamp is before the epoch (%d ms)", e.Millis)
}

// MappingError reports a construction rule that could not build a required
// node or edge field from otherwise-valid event data. It is local to one
// record: the record is dropped and the batch continues.
type MappingError struct {
	EventKind string
	Field     string
	Err       error
}

func (e *MappingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mapping %s: field %s: %v", e.EventKind, e.Field, e.Err)
	}
	return fmt.Sprintf("mapping %s: missing required field %s", e.EventKind, e.Field)
}

func (e *MappingError) Unwrap() error { return e.Err }

// SinkError reports a failed batch handoff. It is fatal to the invocation:
// the whole batch's work would otherwise be silently lost. Retry policy
// belongs to the transport, not here.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("batch handoff failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
