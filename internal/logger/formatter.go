package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FixedFormatWriter turns zerolog JSON lines into fixed-width columns:
//
//	2026-02-26 12:00:00.000 [INF] [main           ] Starting TelemetryAgent version=dev
//	2026-02-26 12:00:01.200 [WRN] [emitter        ] Batch delivery failed endpoint=http://collector:14654
//
// Lines that are not JSON objects are written unchanged.
type FixedFormatWriter struct {
	w io.Writer
}

func NewFixedFormatWriter(w io.Writer) *FixedFormatWriter {
	return &FixedFormatWriter{w: w}
}

const (
	componentWidth  = 15
	timestampLayout = "2006-01-02 15:04:05.000"
)

var levelAbbrev = map[string]string{
	zerolog.LevelTraceValue: "TRC",
	zerolog.LevelDebugValue: "DBG",
	zerolog.LevelInfoValue:  "INF",
	zerolog.LevelWarnValue:  "WRN",
	zerolog.LevelErrorValue: "ERR",
	zerolog.LevelFatalValue: "FTL",
	zerolog.LevelPanicValue: "PNC",
}

func (f *FixedFormatWriter) Write(p []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return f.w.Write(p)
	}

	ts := takeString(fields, zerolog.TimestampFieldName)
	lvl, ok := levelAbbrev[takeString(fields, zerolog.LevelFieldName)]
	if !ok {
		lvl = "???"
	}
	comp := takeString(fields, "component")
	if len(comp) > componentWidth {
		comp = comp[:componentWidth]
	}
	msg := takeString(fields, zerolog.MessageFieldName)
	delete(fields, zerolog.CallerFieldName)

	var sb strings.Builder
	sb.WriteString(formatTimestamp(ts))
	fmt.Fprintf(&sb, " [%s] [%-*s] %s", lvl, componentWidth, comp, msg)
	if extra := formatExtra(fields); extra != "" {
		sb.WriteByte(' ')
		sb.WriteString(extra)
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(f.w, sb.String())
	// zerolog expects the length of its own input.
	return len(p), err
}

// takeString removes key from fields and returns its value as a string.
func takeString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	delete(fields, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// formatTimestamp renders an RFC3339 timestamp as wall-clock time in its
// own offset with millisecond precision, dropping the zone. Unparseable
// input is padded or cut to the column width.
func formatTimestamp(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Format(timestampLayout)
	}
	if len(ts) > len(timestampLayout) {
		return ts[:len(timestampLayout)]
	}
	return ts + strings.Repeat(" ", len(timestampLayout)-len(ts))
}

// formatExtra renders the remaining fields as sorted key=value pairs,
// quoting values that contain whitespace or quotes.
func formatExtra(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		v := fmt.Sprint(fields[k])
		if strings.ContainsAny(v, " \t\n\"") {
			v = fmt.Sprintf("%q", v)
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
	}
	return sb.String()
}
