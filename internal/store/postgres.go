// Package store persists facilities in postgres. It backs both the
// fetch pipeline and the draw-to-create workflow when the service owns
// its data instead of proxying the facility API.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/core/model"
)

var (
	ErrAlreadyExists = errors.New("facility already exists")
	ErrNotFound      = errors.New("facility not found")
)

type Db struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(ctx context.Context, connStr string, log zerolog.Logger) (Db, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return Db{}, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return Db{}, fmt.Errorf("postgres ping: %w", err)
	}

	db := Db{pool: pool, log: log}
	if err := db.initialize(ctx); err != nil {
		pool.Close()
		return Db{}, err
	}
	return db, nil
}

func (db Db) initialize(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS facilities (
		id          TEXT  NOT NULL,
		org_id      TEXT  NOT NULL,
		name        TEXT  NOT NULL,
		type        TEXT  NOT NULL,
		status      TEXT  NOT NULL DEFAULT 'ACTIVE',
		location    POINT NULL,
		geometry    JSONB NULL,
		attributes  JSONB NULL,
		created_on  timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_on timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	);

	CREATE INDEX IF NOT EXISTS facility_org_idx ON facilities (org_id, type);
	CREATE INDEX IF NOT EXISTS facility_location_idx ON facilities USING GIST(location);
	`

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ddl transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("execute ddl: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ddl: %w", err)
	}
	return nil
}

const facilityColumns = `id, org_id, name, type, status, location[0], location[1], geometry, attributes, created_on, modified_on`

// FetchByOrg satisfies the fetch pipeline's source contract.
func (db Db) FetchByOrg(ctx context.Context, orgID string, q model.Query) ([]model.Facility, error) {
	return db.QueryFacilities(ctx, WithOrgID(orgID), WithBBox(q.BBox), WithTypes(q.Types), WithLimit(10000))
}

func (db Db) QueryFacilities(ctx context.Context, conditions ...ConditionFunc) ([]model.Facility, error) {
	where, args := newQueryFacilitiesParams(conditions...)
	rows, err := db.pool.Query(ctx, `SELECT `+facilityColumns+` FROM facilities `+where, args)
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facilities: %w", err)
	}
	return out, nil
}

func (db Db) GetByID(ctx context.Context, id string) (model.Facility, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id=@id`,
		pgx.NamedArgs{"id": id})
	if err != nil {
		return model.Facility{}, fmt.Errorf("query facility: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return model.Facility{}, ErrNotFound
	}
	return scanFacility(rows)
}

func (db Db) Create(ctx context.Context, f model.Facility) (model.Facility, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	attrs, geom, err := encodeJSONCols(f)
	if err != nil {
		return model.Facility{}, err
	}

	insert := `INSERT INTO facilities(id, org_id, name, type, status, location, geometry, attributes, created_on, modified_on)
		VALUES (@id, @org_id, @name, @type, @status, ` + pointExpr(f) + `, @geometry, @attributes, @created_on, @modified_on)`
	_, err = db.pool.Exec(ctx, insert, pgx.NamedArgs{
		"id":          f.ID,
		"org_id":      f.OrgID,
		"name":        f.Name,
		"type":        f.Type,
		"status":      f.Status,
		"lng":         deref(f.Lng),
		"lat":         deref(f.Lat),
		"geometry":    geom,
		"attributes":  attrs,
		"created_on":  f.CreatedAt,
		"modified_on": f.UpdatedAt,
	})
	if err != nil {
		if isDuplicateKeyErr(err) {
			return model.Facility{}, ErrAlreadyExists
		}
		return model.Facility{}, fmt.Errorf("insert facility: %w", err)
	}
	db.log.Debug().Str("facility_id", f.ID).Str("org_id", f.OrgID).Msg("facility inserted")
	return f, nil
}

func (db Db) Update(ctx context.Context, f model.Facility) (model.Facility, error) {
	f.UpdatedAt = time.Now().UTC()

	attrs, geom, err := encodeJSONCols(f)
	if err != nil {
		return model.Facility{}, err
	}

	update := `UPDATE facilities SET
		name=@name, type=@type, status=@status,
		location=` + pointExpr(f) + `, geometry=@geometry, attributes=@attributes,
		modified_on=@modified_on
		WHERE id=@id`
	tag, err := db.pool.Exec(ctx, update, pgx.NamedArgs{
		"id":          f.ID,
		"name":        f.Name,
		"type":        f.Type,
		"status":      f.Status,
		"lng":         deref(f.Lng),
		"lat":         deref(f.Lat),
		"geometry":    geom,
		"attributes":  attrs,
		"modified_on": f.UpdatedAt,
	})
	if err != nil {
		return model.Facility{}, fmt.Errorf("update facility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Facility{}, ErrNotFound
	}
	return f, nil
}

func (db Db) Delete(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM facilities WHERE id=@id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("delete facility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db Db) Close() {
	db.pool.Close()
}

func pointExpr(f model.Facility) string {
	if f.Lat == nil || f.Lng == nil {
		return "NULL"
	}
	return "point(@lng,@lat)"
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func encodeJSONCols(f model.Facility) (attrs, geom []byte, err error) {
	if f.Attributes != nil {
		attrs, err = json.Marshal(f.Attributes)
		if err != nil {
			return nil, nil, fmt.Errorf("encode attributes: %w", err)
		}
	}
	if len(f.Geometry) > 0 {
		geom = f.Geometry
	}
	return attrs, geom, nil
}

func scanFacility(rows pgx.Rows) (model.Facility, error) {
	var (
		f     model.Facility
		lng   *float64
		lat   *float64
		geom  []byte
		attrs []byte
	)
	err := rows.Scan(&f.ID, &f.OrgID, &f.Name, &f.Type, &f.Status,
		&lng, &lat, &geom, &attrs, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return model.Facility{}, fmt.Errorf("scan facility: %w", err)
	}
	f.Lng, f.Lat = lng, lat
	if len(geom) > 0 {
		f.Geometry = json.RawMessage(geom)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &f.Attributes); err != nil {
			return model.Facility{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return f, nil
}

func isDuplicateKeyErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
