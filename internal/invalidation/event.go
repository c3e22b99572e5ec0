// Package invalidation defines the facility change events consumed
// from kafka to drop stale cached viewport queries.
package invalidation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Event struct {
	Version    int             `json:"version"`
	Op         string          `json:"op"`
	FacilityID string          `json:"facility_id"`
	OrgID      string          `json:"org_id,omitempty"`
	Seq        uint64          `json:"seq"`
	TS         time.Time       `json:"ts"`
	Lat        *float64        `json:"lat,omitempty"`
	Lng        *float64        `json:"lng,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "create", "update", "delete":
	default:
		return fmt.Errorf("op must be create|update|delete")
	}
	if strings.TrimSpace(e.FacilityID) == "" {
		return fmt.Errorf("facility_id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasPoint := e.Lat != nil && e.Lng != nil
	hasGeom := len(e.Geometry) > 0
	if hasPoint == hasGeom {
		return fmt.Errorf("exactly one of lat/lng or geometry is required")
	}
	if hasPoint {
		if *e.Lng < -180 || *e.Lng > 180 {
			return fmt.Errorf("lng out of range")
		}
		if *e.Lat < -90 || *e.Lat > 90 {
			return fmt.Errorf("lat out of range")
		}
		return nil
	}
	// quick GeoJSON header check
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Geometry, &hdr); err != nil {
		return fmt.Errorf("geometry parse: %w", err)
	}
	switch hdr.Type {
	case "Point", "Polygon", "MultiPolygon":
	default:
		return fmt.Errorf("geometry.type must be Point, Polygon or MultiPolygon")
	}
	return nil
}
