package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

const levelFatal = "FATAL"

// writeLog renders one log line and routes it by severity: ERROR and FATAL
// go to stderr, everything else to stdout. Fields print sorted by key so
// output is stable across runs.
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", timestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}

	if level == strError || level == levelFatal {
		fmt.Fprintln(os.Stderr, b.String())
	} else {
		log.Println(b.String())
	}
}

// logf formats the message and merges the logger's persistent fields over
// any trace fields carried by its context.
func (l *Logger) logf(level, msg string, args ...interface{}) {
	merged := extractContextFields(l.ctx)
	if len(l.fields) > 0 {
		if merged == nil {
			merged = make(map[string]interface{}, len(l.fields))
		}
		for k, v := range l.fields {
			merged[k] = v
		}
	}
	l.writeLog(level, fmt.Sprintf(msg, args...), merged)
}

// timestamp returns an RFC3339 timestamp, overridable via LOG_TIMESTAMP for
// deterministic test output.
func timestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}

// cloneFields copies a field map so child loggers never alias their parent's
func cloneFields(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
