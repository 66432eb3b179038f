package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdesk/internal/model"
)

func setupMockDB(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresDB(sqlx.NewDb(mockDB, "sqlmock")), mock
}

var transportCols = []string{"id", "employee_id", "name", "email", "phone",
	"departure", "departure_lat", "departure_lng", "arrival", "arrival_lat", "arrival_lng", "virtual_vehicle_id"}

func expectGet(mock sqlmock.Sqlmock, id string, when time.Time, status string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, direction, scheduled_at, status FROM transport_requests")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "direction", "scheduled_at", "status"}).
			AddRow(id, "home_to_work", when, status))
	mock.ExpectQuery(regexp.QuoteMeta("FROM employee_transports WHERE request_id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(transportCols).
			AddRow("p1", "e1", "Ann", "ann@example.com", "", "Main St 1", 52.5, 13.4, "HQ", nil, nil, "").
			AddRow("p2", "e2", "Bob", "", "", "Side St 2", nil, nil, "HQ", nil, nil, "v1"))
}

func TestPostgres_GetTransportRequestByID(t *testing.T) {
	p, mock := setupMockDB(t)
	when := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)
	expectGet(mock, "r1", when, "approved")

	tr, err := p.GetTransportRequestByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.HomeToWork, tr.Direction)
	assert.Equal(t, model.RequestApproved, tr.Status)
	assert.Equal(t, when, tr.ScheduledAt)
	require.Len(t, tr.Passengers, 2)
	require.NotNil(t, tr.Passengers[0].Departure.Location)
	assert.Equal(t, 13.4, tr.Passengers[0].Departure.Location.Lng)
	assert.Nil(t, tr.Passengers[0].Arrival.Location)
	assert.Equal(t, "v1", tr.Passengers[1].VirtualVehicleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetTransportRequestByID_NotFound(t *testing.T) {
	p, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_requests")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "direction", "scheduled_at", "status"}))

	_, err := p.GetTransportRequestByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_UpdateTransportRequest(t *testing.T) {
	p, mock := setupMockDB(t)
	st := model.RequestDispatched
	patch := model.TransportRequestPatch{
		EmployeeTransports: []model.EmployeeTransportPatch{{ID: "p1", VirtualVehicleID: "v1"}, {ID: "p2", VirtualVehicleID: "v1"}},
		Status:             &st,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM transport_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE employee_transports SET virtual_vehicle_id")).
		WithArgs("v1", "p1", "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE employee_transports SET virtual_vehicle_id")).
		WithArgs("v1", "p2", "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transport_requests SET status")).
		WithArgs("dispatched", "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectGet(mock, "r1", time.Now().UTC(), "dispatched")

	tr, err := p.UpdateTransportRequest(context.Background(), "r1", patch)
	require.NoError(t, err)
	assert.Equal(t, model.RequestDispatched, tr.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateTransportRequest_UnknownPassengerRollsBack(t *testing.T) {
	p, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE employee_transports")).
		WithArgs("v1", "ghost", "r1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := p.UpdateTransportRequest(context.Background(), "r1", model.TransportRequestPatch{
		EmployeeTransports: []model.EmployeeTransportPatch{{ID: "ghost", VirtualVehicleID: "v1"}},
	})
	assert.ErrorIs(t, err, ErrInvalidPatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WebhookQueue(t *testing.T) {
	p, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_deliveries")).
		WithArgs(sqlmock.AnyArg(), "dispatch.committed", "http://hook", "s", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	id, err := p.EnqueueWebhook(ctx, "dispatch.committed", "http://hook", "s", []byte(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_deliveries WHERE status = 'pending'")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "url", "secret", "payload", "status", "attempts"}).
			AddRow(id, "dispatch.committed", "http://hook", "s", []byte(`{}`), "pending", 0))
	due, err := p.FetchDueWebhookDeliveries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "http://hook", due[0].URL)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'delivered'")).
		WithArgs(id, "", 200, 12).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, p.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 12))

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'failed'")).
		WithArgs(id, "boom", 500, 3).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, p.FailWebhookDelivery(ctx, id, "boom", 500, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
