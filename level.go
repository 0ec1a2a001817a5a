package ntrc

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Level controls the verbosity of trace capture. Levels are ordered by
// increasing verbosity, and a higher level enables everything enabled by the
// levels below it.
//
//	LevelOff        nothing is captured
//	LevelErrors     only calls that exit with an error
//	LevelSummary    root and leaf calls, intermediate calls are pruned
//	LevelNarrative  every call, parameter values suppressed
//	LevelDetail     every call, with parameter values
type Level int8

const (
	LevelOff Level = iota
	LevelErrors
	LevelSummary
	LevelNarrative
	LevelDetail
)

// Enabled returns true if the level is at least as verbose as required.
func (lvl Level) Enabled(required Level) bool {
	return lvl >= required
}

// String implements fmt.Stringer.
func (lvl Level) String() string {
	switch lvl {
	case LevelOff:
		return "off"
	case LevelErrors:
		return "errors"
	case LevelSummary:
		return "summary"
	case LevelNarrative:
		return "narrative"
	case LevelDetail:
		return "detail"
	default:
		return fmt.Sprintf("Level(%d)", int8(lvl))
	}
}

// ParseLevel parses the name of a level, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "errors", "error":
		return LevelErrors, nil
	case "summary":
		return LevelSummary, nil
	case "narrative":
		return LevelNarrative, nil
	case "detail":
		return LevelDetail, nil
	default:
		return LevelOff, fmt.Errorf("invalid level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (lvl Level) MarshalText() ([]byte, error) {
	if lvl < LevelOff || lvl > LevelDetail {
		return nil, fmt.Errorf("invalid level %d", int8(lvl))
	}
	return []byte(lvl.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (lvl *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*lvl = parsed
	return nil
}

//
//
//

// LevelVar is a level which can be changed at runtime, safely, while it's
// being read by concurrent executions. Every recorder operation reads the
// level fresh, so a change takes effect on the very next call.
//
// The zero value is LevelDetail.
type LevelVar struct {
	v atomic.Int32 // stored as level-LevelDetail, so the zero value is detail
}

// NewLevelVar returns a level var set to lvl.
func NewLevelVar(lvl Level) *LevelVar {
	var lv LevelVar
	lv.Set(lvl)
	return &lv
}

// Level returns the current level.
func (lv *LevelVar) Level() Level {
	return Level(lv.v.Load()) + LevelDetail
}

// Set the current level.
func (lv *LevelVar) Set(lvl Level) {
	lv.v.Store(int32(lvl - LevelDetail))
}

// String implements fmt.Stringer.
func (lv *LevelVar) String() string {
	return fmt.Sprintf("LevelVar(%s)", lv.Level())
}
