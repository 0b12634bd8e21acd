// conductor drives a dependency-ordered backlog of features through a
// dev/review/QA/PR pipeline, spawning coding-agent subprocesses and
// invoking git/gh along the way.
package main

import (
	"os"
	"time"

	"github.com/pipelinekiln/conductor/pkg/cli"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cli.Version = version
	cli.Execute()
}
