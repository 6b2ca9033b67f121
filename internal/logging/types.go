package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogLevel orders message severities
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

const strError = "ERROR"

// LogField is one structured key-value pair attached to a log line
type LogField struct {
	Key   string
	Value interface{}
}

// Field builds a LogField for the *WithFields methods
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Per-package level overrides. Keys are logger names ("store", "api") or
// prefix patterns ("analysis.*").
var (
	packageLogMu     sync.RWMutex
	packageLogLevels = make(map[string]LogLevel)
)

// SetPackageLogLevels replaces the per-package override table. A nil map is
// a no-op; pass an empty map to clear all overrides.
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}
	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMu.Lock()
	packageLogLevels = parsed
	packageLogMu.Unlock()
	return nil
}

// GetPackageLogLevel resolves the override for a logger name. Exact matches
// win over patterns; among patterns the longest (most specific) wins.
// Returns -1 when no override applies.
func GetPackageLogLevel(name string) LogLevel {
	packageLogMu.RLock()
	defer packageLogMu.RUnlock()

	if level, ok := packageLogLevels[name]; ok {
		return level
	}
	var matches []string
	for pattern := range packageLogLevels {
		if matchesPattern(name, pattern) {
			matches = append(matches, pattern)
		}
	}
	if len(matches) == 0 {
		return LogLevel(-1)
	}
	sort.Slice(matches, func(i, j int) bool { return len(matches[i]) > len(matches[j]) })
	return packageLogLevels[matches[0]]
}

// matchesPattern matches a logger name against an override key. "analysis.*"
// matches "analysis.correlator" but not "analysis" itself.
func matchesPattern(name, pattern string) bool {
	if name == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(name, prefix+".")
	}
	return false
}

func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case strError:
		return ERROR, nil
	case levelFatal:
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}
