// Package logging configures the process-wide zerolog logger and bridges
// pion's internal logging into it.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. Human-friendly output goes to stderr.
func Setup(debug bool) {
	SetupWriter(zerolog.ConsoleWriter{Out: os.Stderr}, debug)
}

func SetupWriter(w io.Writer, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(w)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Module returns the global logger tagged with a module name.
func Module(name string) zerolog.Logger {
	return log.With().Str("module", name).Logger()
}
