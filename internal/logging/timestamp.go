// Package-internal timestamp formatting for internal/logging.Writer,
// the bus daemon's rotated file sink (see providers.go's provideLogger).
package logging

import (
	"strconv"
	"time"
)

// TimestampFormat constants for common formats.
const (
	FormatISO8601   = "iso8601"
	FormatRFC3339   = "rfc3339"
	FormatUnix      = "unix"
	FormatUnixMilli = "unix_milli"
	FormatUnixNano  = "unix_nano"
	FormatCustom    = "custom"
)

// FormatTimestamp formats a timestamp according to the specified
// format. The unix variants format the actual epoch value (t.Format
// cannot express them — Go's reference-time layout has no token for
// "seconds since epoch").
func FormatTimestamp(t time.Time, format string) string {
	switch format {
	case FormatISO8601, "":
		return t.Format(time.RFC3339)
	case FormatRFC3339:
		return t.Format(time.RFC3339Nano)
	case FormatUnix:
		return strconv.FormatInt(t.Unix(), 10)
	case FormatUnixMilli:
		return strconv.FormatInt(t.UnixMilli(), 10)
	case FormatUnixNano:
		return strconv.FormatInt(t.UnixNano(), 10)
	default:
		// Treat as custom Go time format
		return t.Format(format)
	}
}

// ParseTimestampFormat validates and returns a timestamp format.
func ParseTimestampFormat(format string) string {
	switch format {
	case FormatISO8601, FormatRFC3339, FormatUnix, FormatUnixMilli, FormatUnixNano:
		return format
	case "":
		return FormatISO8601
	default:
		// Assume custom format, validate by trying to format
		_ = time.Now().Format(format)
		return format
	}
}
