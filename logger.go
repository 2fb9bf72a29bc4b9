package main

import (
	"io/ioutil"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
)

var logger *golog.Logger

// SetLogger overrides the logger of this command. Subcommands assume it is
// never nil.
func SetLogger(l *golog.Logger) {
	logger = l
}

func init() {
	// Null logger until main configures verbosity
	SetLogger(golog.New(ioutil.Discard, log.Debug))
}
