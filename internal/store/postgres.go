package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"fleetdesk/internal/model"
	"fleetdesk/migrations"
)

type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an existing handle.
func NewPostgresDB(db *sqlx.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) DB() *sqlx.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, p.db.DB, migrations.FS)
	if err != nil {
		return fmt.Errorf("store.Postgres.Migrate: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store.Postgres.Migrate: %w", err)
	}
	return nil
}

type requestRow struct {
	ID          string    `db:"id"`
	Direction   string    `db:"direction"`
	ScheduledAt time.Time `db:"scheduled_at"`
	Status      string    `db:"status"`
}

type transportRow struct {
	ID               string          `db:"id"`
	EmployeeID       string          `db:"employee_id"`
	Name             string          `db:"name"`
	Email            string          `db:"email"`
	Phone            string          `db:"phone"`
	Departure        string          `db:"departure"`
	DepartureLat     sql.NullFloat64 `db:"departure_lat"`
	DepartureLng     sql.NullFloat64 `db:"departure_lng"`
	Arrival          string          `db:"arrival"`
	ArrivalLat       sql.NullFloat64 `db:"arrival_lat"`
	ArrivalLng       sql.NullFloat64 `db:"arrival_lng"`
	VirtualVehicleID string          `db:"virtual_vehicle_id"`
}

func (r transportRow) passenger() model.Passenger {
	return model.Passenger{
		ID:               r.ID,
		EmployeeID:       r.EmployeeID,
		Name:             r.Name,
		Email:            r.Email,
		Phone:            r.Phone,
		Departure:        address(r.Departure, r.DepartureLat, r.DepartureLng),
		Arrival:          address(r.Arrival, r.ArrivalLat, r.ArrivalLng),
		VirtualVehicleID: r.VirtualVehicleID,
	}
}

func address(formatted string, lat, lng sql.NullFloat64) model.Address {
	a := model.Address{Formatted: formatted}
	if lat.Valid && lng.Valid {
		a.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return a
}

func (p *Postgres) GetTransportRequestByID(ctx context.Context, id string) (model.TransportRequest, error) {
	var row requestRow
	err := p.db.GetContext(ctx, &row, `SELECT id, direction, scheduled_at, status FROM transport_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TransportRequest{}, ErrNotFound
	}
	if err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.Postgres.GetTransportRequestByID: %w", err)
	}
	var rows []transportRow
	err = p.db.SelectContext(ctx, &rows, `SELECT id, employee_id, name, email, phone,
		departure, departure_lat, departure_lng, arrival, arrival_lat, arrival_lng,
		COALESCE(virtual_vehicle_id, '') AS virtual_vehicle_id
		FROM employee_transports WHERE request_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.Postgres.GetTransportRequestByID: %w", err)
	}
	tr := model.TransportRequest{
		ID:          row.ID,
		Direction:   model.Direction(row.Direction),
		ScheduledAt: row.ScheduledAt,
		Status:      model.RequestStatus(row.Status),
		Passengers:  make([]model.Passenger, 0, len(rows)),
	}
	for _, r := range rows {
		tr.Passengers = append(tr.Passengers, r.passenger())
	}
	return tr, nil
}

// UpdateTransportRequest applies the whole patch in one transaction.
func (p *Postgres) UpdateTransportRequest(ctx context.Context, id string, patch model.TransportRequestPatch) (model.TransportRequest, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return model.TransportRequest{}, fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, *patch.Status)
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.TransportRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.GetContext(ctx, &status, `SELECT status FROM transport_requests WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TransportRequest{}, ErrNotFound
	}
	if err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.Postgres.UpdateTransportRequest: %w", err)
	}
	for _, et := range patch.EmployeeTransports {
		res, err := tx.ExecContext(ctx, `UPDATE employee_transports SET virtual_vehicle_id = $1 WHERE id = $2 AND request_id = $3`,
			et.VirtualVehicleID, et.ID, id)
		if err != nil {
			return model.TransportRequest{}, fmt.Errorf("store.Postgres.UpdateTransportRequest: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.TransportRequest{}, fmt.Errorf("%w: unknown employee transport %s", ErrInvalidPatch, et.ID)
		}
	}
	if patch.Status != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE transport_requests SET status = $1, updated_at = now() WHERE id = $2`, string(*patch.Status), id); err != nil {
			return model.TransportRequest{}, fmt.Errorf("store.Postgres.UpdateTransportRequest: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.Postgres.UpdateTransportRequest: %w", err)
	}
	return p.GetTransportRequestByID(ctx, id)
}

// PutTransportRequest upserts a request with its passengers, in request order.
func (p *Postgres) PutTransportRequest(ctx context.Context, tr model.TransportRequest) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if tr.Status == "" {
		tr.Status = model.RequestPending
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO transport_requests (id, direction, scheduled_at, status) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET direction = EXCLUDED.direction, scheduled_at = EXCLUDED.scheduled_at, status = EXCLUDED.status, updated_at = now()`,
		tr.ID, string(tr.Direction), tr.ScheduledAt, string(tr.Status))
	if err != nil {
		return fmt.Errorf("store.Postgres.PutTransportRequest: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM employee_transports WHERE request_id = $1`, tr.ID); err != nil {
		return fmt.Errorf("store.Postgres.PutTransportRequest: %w", err)
	}
	for i, ps := range tr.Passengers {
		dl, dg := coords(ps.Departure)
		al, ag := coords(ps.Arrival)
		_, err = tx.ExecContext(ctx, `INSERT INTO employee_transports (id, request_id, position, employee_id, name, email, phone,
			departure, departure_lat, departure_lng, arrival, arrival_lat, arrival_lng, virtual_vehicle_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			ps.ID, tr.ID, i, ps.EmployeeID, ps.Name, ps.Email, ps.Phone,
			ps.Departure.Formatted, dl, dg, ps.Arrival.Formatted, al, ag, nullIfEmpty(ps.VirtualVehicleID))
		if err != nil {
			return fmt.Errorf("store.Postgres.PutTransportRequest: %w", err)
		}
	}
	return tx.Commit()
}

func coords(a model.Address) (any, any) {
	if a.Location == nil {
		return nil, nil
	}
	return a.Location.Lat, a.Location.Lng
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5)`,
		id, eventType, url, secret, payload)
	if err != nil {
		return "", fmt.Errorf("store.Postgres.EnqueueWebhook: %w", err)
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []WebhookDelivery
	err := p.db.SelectContext(ctx, &out, `SELECT id, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.Postgres.FetchDueWebhookDeliveries: %w", err)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	var err error
	if success {
		_, err = p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status = 'delivered', attempts = attempts + 1,
			last_error = $2, response_code = $3, latency_ms = $4, delivered_at = now() WHERE id = $1`,
			id, lastError, responseCode, latencyMs)
	} else {
		next := time.Now()
		if nextAttemptAt != nil {
			next = *nextAttemptAt
		}
		_, err = p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts = attempts + 1, next_attempt_at = $2,
			last_error = $3, response_code = $4, latency_ms = $5 WHERE id = $1`,
			id, next, lastError, responseCode, latencyMs)
	}
	if err != nil {
		return fmt.Errorf("store.Postgres.MarkWebhookDelivery: %w", err)
	}
	return nil
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status = 'failed', attempts = attempts + 1,
		last_error = $2, response_code = $3, latency_ms = $4 WHERE id = $1`, id, lastError, responseCode, latencyMs)
	if err != nil {
		return fmt.Errorf("store.Postgres.FailWebhookDelivery: %w", err)
	}
	return nil
}
