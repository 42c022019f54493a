// Package obs provides grepzilla's structured logging setup: a single
// process-wide zerolog.Logger, console-formatted for a terminal and
// JSON otherwise, with component-tagged child loggers for each
// subsystem.
package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu          sync.Mutex
	base        zerolog.Logger
	initialized bool
)

// Init configures the process-wide base logger. level is parsed with
// zerolog.ParseLevel; an invalid level falls back to info. Safe to
// call more than once (e.g. after reloading configuration); later
// calls replace the base logger used by subsequent New calls.
func Init(level string, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	base = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	initialized = true
}

// New returns a child logger tagged with component, initializing a
// sane stderr/info-level default base logger if Init was never called.
func New(component string) zerolog.Logger {
	mu.Lock()
	if !initialized {
		mu.Unlock()
		Init("info", os.Stderr)
		mu.Lock()
	}
	l := base
	mu.Unlock()
	return l.With().Str("component", component).Logger()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
