package store

import (
	"github.com/jackc/pgx/v5"

	"github.com/umarovb/agromap-core/internal/core/model"
)

// ConditionFunc narrows a facility query.
type ConditionFunc func(map[string]any) map[string]any

func WithOrgID(orgID string) ConditionFunc {
	return func(m map[string]any) map[string]any {
		m["org_id"] = orgID
		return m
	}
}

func WithTypes(types []string) ConditionFunc {
	return func(m map[string]any) map[string]any {
		if len(types) > 0 {
			m["types"] = types
		}
		return m
	}
}

func WithBBox(bb model.BBox) ConditionFunc {
	return func(m map[string]any) map[string]any {
		if !bb.IsZero() {
			m["bbox"] = bb
		}
		return m
	}
}

func WithStatus(status string) ConditionFunc {
	return func(m map[string]any) map[string]any {
		m["status"] = status
		return m
	}
}

func WithOffset(offset int) ConditionFunc {
	return func(m map[string]any) map[string]any {
		m["offset"] = offset
		return m
	}
}

func WithLimit(limit int) ConditionFunc {
	return func(m map[string]any) map[string]any {
		m["limit"] = limit
		return m
	}
}

func newConditions(conditions ...ConditionFunc) map[string]any {
	m := make(map[string]any)
	for _, f := range conditions {
		m = f(m)
	}
	if _, ok := m["limit"]; !ok {
		m["limit"] = 100
	}
	if _, ok := m["offset"]; !ok {
		m["offset"] = 0
	}
	return m
}

func newQueryFacilitiesParams(conditions ...ConditionFunc) (string, pgx.NamedArgs) {
	c := newConditions(conditions...)

	query := "WHERE 1=1"
	args := pgx.NamedArgs{}

	if orgID, ok := c["org_id"]; ok {
		query += " AND org_id=@org_id"
		args["org_id"] = orgID
	}

	if types, ok := c["types"]; ok {
		query += " AND type=ANY(@types)"
		args["types"] = types
	}

	if status, ok := c["status"]; ok {
		query += " AND status=@status"
		args["status"] = status
	}

	if bb, ok := c["bbox"].(model.BBox); ok {
		query += " AND location <@ box(point(@min_lng,@min_lat), point(@max_lng,@max_lat))"
		args["min_lng"] = bb.MinLng
		args["min_lat"] = bb.MinLat
		args["max_lng"] = bb.MaxLng
		args["max_lat"] = bb.MaxLat
	}

	query += " ORDER BY created_on, id"

	if offset, ok := c["offset"]; ok {
		query += " OFFSET @offset"
		args["offset"] = offset
	}

	if limit, ok := c["limit"]; ok {
		query += " LIMIT @limit"
		args["limit"] = limit
	}

	return query, args
}
