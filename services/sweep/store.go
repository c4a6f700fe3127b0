package sweep

import (
	"context"
	"database/sql"
	"time"

	"procheck-sweep/lib/scrapers/procheck"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Sink is where the orchestrator flushes deduplicated snapshots. The
// downstream enrichment and API layers consume whatever the sink holds.
// ListAgents reads the durable superset back, which is how the deep phase
// picks up records found by earlier runs.
type Sink interface {
	SaveSnapshot(ctx context.Context, agents []procheck.Agent) error
	ListAgents(ctx context.Context) ([]procheck.Agent, error)
}

// Store is the sqlite result sink: one row per unique agent, upserted on
// every flush so re-running a sweep converges instead of duplicating.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

const upsertAgent = `
INSERT INTO agents (
	key, drill_id, first_name, middle_name, last_name, full_name,
	status, brokerage, city, sector, aka, email, phone, quality_score,
	scraped_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
	drill_id      = excluded.drill_id,
	first_name    = excluded.first_name,
	middle_name   = excluded.middle_name,
	last_name     = excluded.last_name,
	full_name     = excluded.full_name,
	status        = excluded.status,
	brokerage     = excluded.brokerage,
	city          = excluded.city,
	sector        = excluded.sector,
	aka           = excluded.aka,
	email         = excluded.email,
	phone         = excluded.phone,
	quality_score = excluded.quality_score,
	updated_at    = excluded.updated_at
`

func (s Store) SaveSnapshot(ctx context.Context, agents []procheck.Agent) error {
	ctx, span := tracer.Start(ctx, "store:SaveSnapshot")
	defer span.End()
	span.SetAttributes(attribute.Int("agents", len(agents)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAgent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, a := range agents {
		_, err = stmt.ExecContext(ctx,
			Key(a), a.DrillID, a.FirstName, a.MiddleName, a.LastName,
			a.FullName, a.Status, a.Brokerage, a.City, a.Sector, a.AKA,
			a.Email, a.Phone, a.QualityScore, now, now,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

const listAgents = `
SELECT drill_id, first_name, middle_name, last_name, full_name,
	status, brokerage, city, sector, aka, email, phone, quality_score
FROM agents
ORDER BY last_name, first_name
`

func (s Store) ListAgents(ctx context.Context) ([]procheck.Agent, error) {
	ctx, span := tracer.Start(ctx, "store:ListAgents")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, listAgents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var agents []procheck.Agent
	for rows.Next() {
		var a procheck.Agent
		err = rows.Scan(
			&a.DrillID, &a.FirstName, &a.MiddleName, &a.LastName,
			&a.FullName, &a.Status, &a.Brokerage, &a.City, &a.Sector,
			&a.AKA, &a.Email, &a.Phone, &a.QualityScore,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
