package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/ride-client/internal/models"
)

const transitionsSchema = `CREATE TABLE IF NOT EXISTS ride_transitions (
	ride_id     TEXT        NOT NULL,
	actor_id    TEXT        NOT NULL DEFAULT '',
	from_status TEXT        NOT NULL,
	to_status   TEXT        NOT NULL,
	origin      TEXT        NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (ride_id, actor_id, to_status)
)`

// PostgresJournal stores transitions keyed by target status, so replays of
// the same transition are no-ops.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresJournal{db: db}, nil
}

func (p *PostgresJournal) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, transitionsSchema)
	return err
}

func (p *PostgresJournal) Record(ctx context.Context, t models.Transition) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_transitions(ride_id, actor_id, from_status, to_status, origin, at) VALUES($1,$2,$3,$4,$5,$6) ON CONFLICT DO NOTHING`,
		t.RideID, t.ActorID, string(t.From), string(t.To), string(t.Origin), t.At)
	return err
}

// History returns the recorded transitions of a ride in time order.
func (p *PostgresJournal) History(ctx context.Context, rideID string) ([]models.Transition, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT ride_id, actor_id, from_status, to_status, origin, at FROM ride_transitions WHERE ride_id=$1 ORDER BY at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Transition
	for rows.Next() {
		var t models.Transition
		var from, to, origin string
		if err := rows.Scan(&t.RideID, &t.ActorID, &from, &to, &origin, &t.At); err != nil {
			return nil, err
		}
		t.From, t.To, t.Origin = models.Status(from), models.Status(to), models.Origin(origin)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresJournal) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresJournal) Close() error { return p.db.Close() }
