// FilePath: internal/repository/postgres/postgres.identity.go
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/itsatony/sensorhub/internal/database"
	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/models"
	"github.com/lib/pq"
	nuts "github.com/vaudience/go-nuts"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pqUniqueViolation = "23505"

var schemas = map[string]string{
	database.DriverPostgres: `
		CREATE TABLE IF NOT EXISTS sensors (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	database.DriverSQLite: `
		CREATE TABLE IF NOT EXISTS sensors (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
}

// IdentityRepo keeps the canonical sensor rows. IDs come from the database
// sequence and are never reused.
type IdentityRepo struct {
	PostgresBaseRepo
	now func() time.Time
}

func NewIdentityRepository(db database.DB) *IdentityRepo {
	repo := &PostgresBaseRepo{db: db}
	return &IdentityRepo{PostgresBaseRepo: *repo, now: time.Now}
}

// EnsureSchema creates the sensors table if it does not exist yet
func (r *IdentityRepo) EnsureSchema(ctx context.Context) error {
	schema, ok := schemas[r.db.Driver()]
	if !ok {
		return errors.NewInternalError("no schema for driver "+r.db.Driver(), nil)
	}
	if _, err := r.db.GetDB().ExecContext(ctx, schema); err != nil {
		return errors.NewDatabaseError("failed to create sensors table", err)
	}
	nuts.L.Debugf("[IdentityRepo] Schema ready (%s)", r.db.Driver())
	return nil
}

func (r *IdentityRepo) Create(ctx context.Context, name string) (*models.Sensor, error) {
	sensor := &models.Sensor{
		Name:      name,
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	query := r.rebind(`INSERT INTO sensors (name, created_at) VALUES (?, ?) RETURNING id`)

	err := r.db.GetDB().QueryRowxContext(ctx, query, sensor.Name, sensor.CreatedAt).Scan(&sensor.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.NewConflictError("sensor name already exists", err)
		}
		return nil, errors.NewDatabaseError("failed to create sensor", err)
	}
	return sensor, nil
}

func (r *IdentityRepo) Get(ctx context.Context, id int64) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	query := r.rebind(`SELECT id, name, created_at FROM sensors WHERE id = ?`)

	err := r.db.GetDB().GetContext(ctx, sensor, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("sensor not found", err).WithSensorID(id)
		}
		return nil, errors.NewDatabaseError("failed to get sensor", err)
	}
	return sensor, nil
}

func (r *IdentityRepo) GetByName(ctx context.Context, name string) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	query := r.rebind(`SELECT id, name, created_at FROM sensors WHERE name = ?`)

	err := r.db.GetDB().GetContext(ctx, sensor, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("sensor not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get sensor", err)
	}
	return sensor, nil
}

func (r *IdentityRepo) List(ctx context.Context, offset, limit int) ([]*models.Sensor, error) {
	sensors := []*models.Sensor{}
	query := r.rebind(`SELECT id, name, created_at FROM sensors ORDER BY id LIMIT ? OFFSET ?`)

	err := r.db.GetDB().SelectContext(ctx, &sensors, query, limit, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list sensors", err)
	}
	return sensors, nil
}

// ListCreatedBefore returns identities created strictly before the given time
func (r *IdentityRepo) ListCreatedBefore(ctx context.Context, before time.Time) ([]*models.Sensor, error) {
	sensors := []*models.Sensor{}
	query := r.rebind(`SELECT id, name, created_at FROM sensors WHERE created_at < ? ORDER BY id`)

	err := r.db.GetDB().SelectContext(ctx, &sensors, query, before.UTC())
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list sensors", err)
	}
	return sensors, nil
}

func (r *IdentityRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.ExecContext(ctx, `DELETE FROM sensors WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor not found", nil).WithSensorID(id)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
