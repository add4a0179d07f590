package core

import "github.com/rs/zerolog"

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

var _ Log = (*zerolog.Logger)(nil)

// NopLog discards everything.
func NopLog() Log {
	l := zerolog.Nop()
	return &l
}
