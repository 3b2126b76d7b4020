package log

type Field struct {
	Key   string
	Value any
}

type Logger interface {
	Debug(message string, fields ...Field)
	Info(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Error(message string, fields ...Field)
	// With returns a logger that adds fields to every record.
	With(fields ...Field) Logger
}

// Nop returns a Logger that drops everything.
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (nop) Debug(string, ...Field) {}
func (nop) Info(string, ...Field)  {}
func (nop) Warn(string, ...Field)  {}
func (nop) Error(string, ...Field) {}
func (n nop) With(...Field) Logger { return n }
