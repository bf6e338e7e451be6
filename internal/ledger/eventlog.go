package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Outcome is the terminal (or initial) state of a recorded operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeError   Outcome = "ERROR"
	OutcomeStarted Outcome = "STARTED"
)

// Actions recorded in the sync event log.
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionBatch     = "batch"
	ActionLink      = "link"
	ActionPush      = "push"
	ActionReconcile = "reconcile"
)

// Event is one row of registro_sincronizacion.
type Event struct {
	ID       int64
	Kind     Kind
	EntityID *int64
	Action   string
	Outcome  Outcome
	Message  string
	Detail   map[string]any
	At       time.Time
}

// Recorder accepts audit entries. Implementations must not block or fail the
// caller; losing an entry is preferable to losing the data operation.
type Recorder interface {
	Record(ctx context.Context, evt Event)
}

// EventLog writes to the append-only registro_sincronizacion table.
type EventLog struct {
	db     dbtx
	logger *slog.Logger
	now    func() time.Time
}

// NewEventLog constructs an EventLog.
func NewEventLog(db dbtx, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EventLog{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends evt. Errors and panics are downgraded to a warning.
func (l *EventLog) Record(ctx context.Context, evt Event) {
	if l == nil || l.db == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("event log panic", slog.Any("panic", r))
		}
	}()
	if evt.At.IsZero() {
		evt.At = l.now()
	}
	var detail []byte
	if len(evt.Detail) > 0 {
		raw, err := json.Marshal(evt.Detail)
		if err != nil {
			l.logger.Warn("event log detail encode", slog.Any("error", err))
		} else {
			detail = raw
		}
	}
	_, err := l.db.Exec(ctx, `INSERT INTO registro_sincronizacion (tipo_entidad, entidad_id, accion, resultado, mensaje, detalles, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.Kind.String(), evt.EntityID, evt.Action, string(evt.Outcome), evt.Message, detail, evt.At)
	if err != nil {
		l.logger.Warn("event log write failed",
			slog.String("entity", evt.Kind.String()),
			slog.String("action", evt.Action),
			slog.String("outcome", string(evt.Outcome)),
			slog.Any("error", err),
		)
	}
}

// RecentFilter narrows Recent.
type RecentFilter struct {
	Kind    Kind
	Outcome Outcome
	Limit   int
}

// Recent returns the newest events first.
func (l *EventLog) Recent(ctx context.Context, filter RecentFilter) ([]Event, error) {
	var conditions []string
	var args []interface{}
	if filter.Kind.Valid() {
		args = append(args, filter.Kind.String())
		conditions = append(conditions, fmt.Sprintf("tipo_entidad = $%d", len(args)))
	}
	if filter.Outcome != "" {
		args = append(args, string(filter.Outcome))
		conditions = append(conditions, fmt.Sprintf("resultado = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT id, tipo_entidad, entidad_id, accion, resultado, mensaje, detalles, created_at FROM registro_sincronizacion`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt     Event
			kind    string
			outcome string
			detail  []byte
		)
		if err := rows.Scan(&evt.ID, &kind, &evt.EntityID, &evt.Action, &outcome, &evt.Message, &detail, &evt.At); err != nil {
			return nil, err
		}
		if k, err := ParseKind(kind); err == nil {
			evt.Kind = k
		}
		evt.Outcome = Outcome(outcome)
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &evt.Detail)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Discard is a Recorder that drops everything.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(context.Context, Event) {}
