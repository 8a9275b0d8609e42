package sqlite

import "time"

// Timestamps are stored as Unix nanoseconds and read back in UTC.
// Callers validate against types.MinTime/MaxTime; outside that range
// UnixNano wraps.
func encodeTime(t time.Time) int64 { return t.UnixNano() }

func decodeTime(n int64) time.Time { return time.Unix(0, n).UTC() }
