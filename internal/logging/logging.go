// Package logging wires up structured logging in the style the broader
// tiling toolchain corpus uses: logrus with a nested formatter for
// human-readable terminal output, plus exit-code-aware fatal helpers.
package logging

import (
	"os"
	"sync"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// ExitCode is the process exit status taxonomy from the error-handling
// design: each distinct failure mode gets its own code so a caller script
// can branch on it without parsing stderr.
type ExitCode int

const (
	Success ExitCode = iota
	Args
	Memory
	Open
	Close
	Read
	Write
	Stat
	Pthread
	JSON
	NoData
	Impossible
	Incomplete
)

var once sync.Once

// Init installs the nested formatter. Safe to call more than once; only
// the first call takes effect.
func Init(level logrus.Level) {
	once.Do(func() {
		logrus.SetFormatter(&nested.Formatter{
			HideKeys:        true,
			ShowFullLevel:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		logrus.SetLevel(level)
	})
}

// Fatal logs msg at error level and exits with code. Mirrors the source
// project's log.Fatal idiom, but carries a specific exit code instead of
// the implicit 1 every stdlib log.Fatal produces.
func Fatal(code ExitCode, msg string, args ...interface{}) {
	logrus.Errorf(msg, args...)
	os.Exit(int(code))
}

// OnceWarner logs each distinct kind of recoverable per-feature error a
// single time, then suppresses further occurrences of that kind. One
// instance belongs to a run's ingest.SerializationState and is shared by
// every worker clone of it (not a package-level global — see the source
// project's warnedint/warnedbool vars, which this generalizes and
// de-globals).
type OnceWarner struct {
	mu     sync.Mutex
	warned map[string]bool
}

// NewOnceWarner returns a ready-to-use warner.
func NewOnceWarner() *OnceWarner {
	return &OnceWarner{warned: make(map[string]bool)}
}

// Warn logs msg at warning level the first time kind is seen, and is a
// no-op on every subsequent call with the same kind.
func (w *OnceWarner) Warn(kind, msg string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.warned[kind] {
		return
	}
	w.warned[kind] = true
	logrus.Warnf(msg, args...)
}

// Seen reports whether kind has already been warned about.
func (w *OnceWarner) Seen(kind string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.warned[kind]
}
