package actionlog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// now is replaced in tests to pin the processing date.
var now = time.Now

// maxHours keeps TotalSeconds within uint32.
const maxHours = (math.MaxUint32 - 59*60 - 59) / 3600

// Timestamp is a time of day read from the "Time Stamp[Hr:Min:Sec]" column.
type Timestamp struct {
	// TotalSeconds is the elapsed seconds since 00:00:00.
	TotalSeconds uint32 `json:"total_seconds" yaml:"total_seconds"`

	// Clock is the zero padded HH:MM:SS form.
	Clock string `json:"timestamp" yaml:"timestamp"`

	// DateTime anchors Clock to the UTC date the log was processed on.
	DateTime string `json:"date_string" yaml:"date_string"`
}

// ParseTime parses an H:M:S value. Minutes and seconds must be below 60;
// hours are unbounded apart from overflow.
func ParseTime(input string) (Timestamp, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != 3 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: expected HH:MM:SS", input)
	}

	var values [3]uint64
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", input, err)
		}
		values[i] = v
	}

	hours, minutes, seconds := values[0], values[1], values[2]
	if minutes >= 60 || seconds >= 60 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: minutes and seconds must be below 60", input)
	}
	if hours > maxHours {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: hours out of range", input)
	}

	today := now().UTC()
	return Timestamp{
		TotalSeconds: uint32(hours*3600 + minutes*60 + seconds),
		Clock:        fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
		DateTime: fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
			today.Year(), today.Month(), today.Day(), hours, minutes, seconds),
	}, nil
}

// SecondsOrZero returns the elapsed seconds of ts, or zero when ts is nil.
func SecondsOrZero(ts *Timestamp) uint32 {
	if ts == nil {
		return 0
	}
	return ts.TotalSeconds
}
