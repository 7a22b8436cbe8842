package common

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/common/logging"
)

// ConfigureCommandLineLogging sets up logging for interactive use: bare
// messages on stderr, so that tables and reports written to stdout stay
// machine-readable.
func ConfigureCommandLineLogging() {
	commandLineFormatter := new(logging.CommandLineFormatter)
	log.SetFormatter(commandLineFormatter)
	log.SetOutput(os.Stderr)
}

// ConfigureLogging sets up timestamped logging on stdout, for long-running
// commands where timestamps matter more than clean piping.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}
