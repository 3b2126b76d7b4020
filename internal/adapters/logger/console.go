package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	dLog "pgbridge/internal/domain/log"
)

// Console writes human readable records, used when no log service is
// configured.
type Console struct {
	zl zerolog.Logger
}

func NewConsole(w io.Writer, service string, debug bool) *Console {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	return &Console{zl: zl}
}

func (c *Console) Debug(message string, fields ...dLog.Field) {
	withFields(c.zl.Debug(), fields).Msg(message)
}

func (c *Console) Info(message string, fields ...dLog.Field) {
	withFields(c.zl.Info(), fields).Msg(message)
}

func (c *Console) Warn(message string, fields ...dLog.Field) {
	withFields(c.zl.Warn(), fields).Msg(message)
}

func (c *Console) Error(message string, fields ...dLog.Field) {
	withFields(c.zl.Error(), fields).Msg(message)
}

func (c *Console) With(fields ...dLog.Field) dLog.Logger {
	ctx := c.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Console{zl: ctx.Logger()}
}

func withFields(ev *zerolog.Event, fields []dLog.Field) *zerolog.Event {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			ev = ev.AnErr(f.Key, err)
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}
