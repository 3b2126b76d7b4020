package logger

import (
	"github.com/ZhuchkovAA/loglib"
	"github.com/ZhuchkovAA/loglib/config"

	dLog "pgbridge/internal/domain/log"
)

// Logger ships records to the central log service over gRPC, falling back
// to a local file when the service is unreachable.
type Logger struct {
	Client *loglib.Client
	base   []loglib.Field
}

func New(grpcAddress, fallbackPath, serviceName string) (*Logger, error) {
	client, err := loglib.New(config.Config{
		GRPCAddress:  grpcAddress,
		FallbackPath: fallbackPath,
		ServiceName:  serviceName,
	})
	if err != nil {
		return nil, err
	}
	return &Logger{Client: client}, nil
}

func (l *Logger) Debug(message string, fields ...dLog.Field) {
	l.Client.Debug(message, l.fields(fields)...)
}

func (l *Logger) Info(message string, fields ...dLog.Field) {
	l.Client.Info(message, l.fields(fields)...)
}

func (l *Logger) Warn(message string, fields ...dLog.Field) {
	l.Client.Warn(message, l.fields(fields)...)
}

func (l *Logger) Error(message string, fields ...dLog.Field) {
	l.Client.Error(message, l.fields(fields)...)
}

func (l *Logger) With(fields ...dLog.Field) dLog.Logger {
	return &Logger{Client: l.Client, base: l.fields(fields)}
}

// fields prepends the bound fields; errors are sent as their message since
// the log service only accepts plain values.
func (l *Logger) fields(dFields []dLog.Field) []loglib.Field {
	out := make([]loglib.Field, 0, len(l.base)+len(dFields))
	out = append(out, l.base...)
	for _, d := range dFields {
		v := d.Value
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out = append(out, loglib.Field{Key: d.Key, Value: v})
	}
	return out
}
