package pgnotify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pgbridge/internal/domain/notify"
)

// PgPublisher sends notifications with pg_notify so the payload is passed as
// a bound parameter and never interpreted.
type PgPublisher struct {
	conn *pgx.Conn
}

var _ notify.Publisher = (*PgPublisher)(nil)

func NewPublisher(ctx context.Context, dsn string) (*PgPublisher, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &PgPublisher{conn: c}, nil
}

func (p *PgPublisher) Publish(ctx context.Context, channel, payload string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	if _, err := p.conn.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

func (p *PgPublisher) Close() error {
	if p.conn != nil {
		return p.conn.Close(context.Background())
	}
	return nil
}
