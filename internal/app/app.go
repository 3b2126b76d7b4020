package app

import (
	"fmt"
	"io"
	"os"

	"pgbridge/internal/adapters/logger"
	"pgbridge/internal/adapters/pgnotify"
	"pgbridge/internal/bridge"
	"pgbridge/internal/config"
	"pgbridge/internal/domain/log"
	"pgbridge/internal/services/listener"
)

type App struct {
	Listener *listener.Service
	Channel  string
	Close    func() error
	Logger   log.Logger
}

func Build(cfg *config.Config) (*App, error) {
	return build(cfg, os.Stdout)
}

func build(cfg *config.Config, out io.Writer) (*App, error) {
	dsn, err := cfg.Db.DSN()
	if err != nil {
		return nil, fmt.Errorf("invalid db config: %w", err)
	}
	if err := pgnotify.ValidateChannel(cfg.Db.NotifyChannel); err != nil {
		return nil, err
	}

	myLogger, err := NewLogger(cfg.Logger, out)
	if err != nil {
		return nil, err
	}

	policy, err := bridge.ParseOverflowPolicy(cfg.Bridge.OverflowPolicy)
	if err != nil {
		return nil, err
	}
	opts := []bridge.Option{
		bridge.WithCapacity(cfg.Bridge.QueueCapacity),
		bridge.WithOverflowPolicy(policy),
	}
	if cfg.Sink.LogIgnored {
		opts = append(opts, bridge.WithDiagnosticHook(listener.IgnoredPrinter(out)))
	}

	var newNotifier listener.NotifierFactory
	switch cfg.Db.Driver {
	case "postgres":
		newNotifier = func() listener.Notifier {
			return pgnotify.New(dsn, myLogger, opts...)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Db.Driver)
	}

	var sink listener.Sink
	switch cfg.Sink.Kind {
	case "kafka":
		sink = listener.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	default:
		sink = listener.NewWriterSink(out)
	}

	myLogger.Info("configured",
		log.Field{Key: "dsn", Value: cfg.Db.RedactedDSN()},
		log.Field{Key: "channel", Value: cfg.Db.NotifyChannel},
		log.Field{Key: "sink", Value: cfg.Sink.Kind},
		log.Field{Key: "queue_capacity", Value: cfg.Bridge.QueueCapacity},
		log.Field{Key: "overflow_policy", Value: policy.String()},
	)

	svc := listener.New(newNotifier, sink, myLogger, cfg.Db.NotifyChannel, cfg.Reconnect)

	return &App{
		Listener: svc,
		Channel:  cfg.Db.NotifyChannel,
		Close:    sink.Close,
		Logger:   myLogger,
	}, nil
}

// NewLogger ships logs to the log service when an address is configured and
// prints them to out otherwise.
func NewLogger(cfg config.LoggerConfig, out io.Writer) (log.Logger, error) {
	if cfg.GRPCAddress == "" {
		return logger.NewConsole(out, cfg.ServiceName, cfg.Debug), nil
	}
	return logger.New(cfg.GRPCAddress, cfg.FallbackPath, cfg.ServiceName)
}
