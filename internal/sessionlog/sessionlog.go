// Package sessionlog persists ride events to PostgreSQL for fleet analysis:
// what passengers asked, what the assistant said, which proactive offers
// fired, and which tools ran.
//
// Logging is strictly best effort. The pipeline never blocks on the
// database, and a missing DSN yields a no-op logger so demo rigs run
// without PostgreSQL at all.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event kinds recorded per ride.
const (
	EventTranscript = "transcript"      // passenger speech accepted by the gates
	EventReply      = "reply"           // assistant spoken reply
	EventProactive  = "proactive_offer" // proactive trigger fired
	EventToolCall   = "tool_call"       // tool executed during a turn
	EventEchoDrop   = "echo_drop"       // transcript rejected as self-echo
)

const ddlRideEvents = `
CREATE TABLE IF NOT EXISTS ride_events (
    id         BIGSERIAL    PRIMARY KEY,
    ride_id    TEXT         NOT NULL,
    kind       TEXT         NOT NULL,
    detail     TEXT         NOT NULL DEFAULT '',
    text       TEXT         NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ride_events_ride_id
    ON ride_events (ride_id);

CREATE INDEX IF NOT EXISTS idx_ride_events_ride_created
    ON ride_events (ride_id, created_at);
`

// writeTimeout bounds one insert so a slow database cannot stall shutdown.
const writeTimeout = 3 * time.Second

// Logger records ride events. The zero value is not usable; construct with
// [New] or [NewNoop].
type Logger struct {
	pool   *pgxpool.Pool
	rideID string
	log    *slog.Logger
}

// New connects to PostgreSQL at dsn, ensures the schema exists, and returns
// a Logger scoped to rideID. An empty dsn returns a no-op Logger and no
// error.
func New(ctx context.Context, dsn, rideID string, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.Default()
	}
	if dsn == "" {
		log.Info("session log disabled, no database configured")
		return NewNoop(), nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sessionlog: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlRideEvents); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sessionlog: migrate: %w", err)
	}

	return &Logger{pool: pool, rideID: rideID, log: log}, nil
}

// NewNoop returns a Logger that drops every event.
func NewNoop() *Logger {
	return &Logger{log: slog.Default()}
}

// Enabled reports whether events are actually persisted.
func (l *Logger) Enabled() bool { return l.pool != nil }

// Record inserts one event. Failures are logged and swallowed; the
// conversation must not depend on the database being up.
func (l *Logger) Record(ctx context.Context, kind, detail, text string) {
	if l.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO ride_events (ride_id, kind, detail, text) VALUES ($1, $2, $3, $4)`,
		l.rideID, kind, detail, text,
	)
	if err != nil {
		l.log.Warn("ride event not recorded", "kind", kind, "error", err)
	}
}

// Transcript records accepted passenger speech.
func (l *Logger) Transcript(ctx context.Context, text string) {
	l.Record(ctx, EventTranscript, "", text)
}

// Reply records an assistant spoken reply with its origin ("user",
// "proactive", "intro").
func (l *Logger) Reply(ctx context.Context, origin, text string) {
	l.Record(ctx, EventReply, origin, text)
}

// Proactive records a fired proactive trigger.
func (l *Logger) Proactive(ctx context.Context, trigger string) {
	l.Record(ctx, EventProactive, trigger, "")
}

// ToolCall records a tool execution and its status.
func (l *Logger) ToolCall(ctx context.Context, tool, status string) {
	l.Record(ctx, EventToolCall, tool, status)
}

// EchoDrop records a transcript rejected by the echo gates, with the stage
// that rejected it ("timing" or "fuzzy").
func (l *Logger) EchoDrop(ctx context.Context, stage, text string) {
	l.Record(ctx, EventEchoDrop, stage, text)
}

// Ping probes the database. A disabled logger always reports healthy.
func (l *Logger) Ping(ctx context.Context) error {
	if l.pool == nil {
		return nil
	}
	return l.pool.Ping(ctx)
}

// Close releases the connection pool. Safe on a no-op Logger.
func (l *Logger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
