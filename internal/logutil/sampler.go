package logutil

import (
	"github.com/rs/zerolog"
)

// LevelSampler drops every event below its level. The command line
// tools sample through it so they stay quiet unless asked for verbose
// output.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
