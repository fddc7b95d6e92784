// Package logging bridges core.Logger to zerolog.
package logging

import (
	"github.com/Swind/go-task-graph/core"
	"github.com/rs/zerolog"
)

// ZerologLogger implements core.Logger on top of a zerolog.Logger.
type ZerologLogger struct {
	Z zerolog.Logger
}

var _ core.Logger = (*ZerologLogger)(nil)

// NewZerologLogger wraps z. Level filtering is left to z.
func NewZerologLogger(z zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{Z: z}
}

func (x *ZerologLogger) Debug(msg string, fields ...core.Field) { write(x.Z.Debug(), msg, fields) }
func (x *ZerologLogger) Info(msg string, fields ...core.Field)  { write(x.Z.Info(), msg, fields) }
func (x *ZerologLogger) Warn(msg string, fields ...core.Field)  { write(x.Z.Warn(), msg, fields) }
func (x *ZerologLogger) Error(msg string, fields ...core.Field) { write(x.Z.Error(), msg, fields) }

func write(e *zerolog.Event, msg string, fields []core.Field) {
	// nil when the level is disabled
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			e.AnErr(f.Key, v)
		case string:
			e.Str(f.Key, v)
		case int:
			e.Int(f.Key, v)
		case int64:
			e.Int64(f.Key, v)
		case uint64:
			e.Uint64(f.Key, v)
		case bool:
			e.Bool(f.Key, v)
		default:
			e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}
