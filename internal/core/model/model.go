// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BBox is a geographic bounding box in EPSG:4326 degrees.
type BBox struct {
	MinLng, MinLat float64
	MaxLng, MaxLat float64
}

// String renders the box as "minLng,minLat,maxLng,maxLat" with fixed
// precision so equal viewports always produce the same string.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}

func (b BBox) IsZero() bool {
	return b.MinLng == 0 && b.MinLat == 0 && b.MaxLng == 0 && b.MaxLat == 0
}

// Contains reports whether the point lies inside or on the box.
func (b BBox) Contains(lng, lat float64) bool {
	return lng >= b.MinLng && lng <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat
}

func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, errors.New("expected 4 comma-separated values: minLng,minLat,maxLng,maxLat")
	}
	minLng, err := parseFloat(parts[0])
	if err != nil {
		return BBox{}, fmt.Errorf("minLng: %w", err)
	}
	minLat, err := parseFloat(parts[1])
	if err != nil {
		return BBox{}, fmt.Errorf("minLat: %w", err)
	}
	maxLng, err := parseFloat(parts[2])
	if err != nil {
		return BBox{}, fmt.Errorf("maxLng: %w", err)
	}
	maxLat, err := parseFloat(parts[3])
	if err != nil {
		return BBox{}, fmt.Errorf("maxLat: %w", err)
	}

	if !(minLng >= -180 && minLng <= 180 && maxLng >= -180 && maxLng <= 180) {
		return BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(minLat >= -90 && minLat <= 90 && maxLat >= -90 && maxLat <= 90) {
		return BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if maxLng <= minLng || maxLat <= minLat {
		return BBox{}, errors.New("coordinates must satisfy maxLng>minLng and maxLat>minLat")
	}
	return BBox{MinLng: minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

// Facility statuses as stored and served.
const (
	StatusActive           = "ACTIVE"
	StatusInactive         = "INACTIVE"
	StatusUnderMaintenance = "UNDER_MAINTENANCE"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusUnderMaintenance:
		return true
	}
	return false
}

// Facility is a located agricultural facility owned by an organization.
// Geometry holds the raw GeoJSON of the drawn shape; Lat/Lng is the
// derived marker position and may be absent for legacy records.
type Facility struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"orgId"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Lat        *float64        `json:"lat,omitempty"`
	Lng        *float64        `json:"lng,omitempty"`
	Zoom       *int            `json:"zoom,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	CreatedAt  time.Time       `json:"createdAt,omitzero"`
	UpdatedAt  time.Time       `json:"updatedAt,omitzero"`
}

// Query describes one facility lookup: which area and which types.
type Query struct {
	BBox  BBox
	Types []string
}

// QueryKey identifies one logical viewport query. Two keys are equal
// exactly when the normalized bbox, the checked org ids (in check
// order), the sorted type filter and the reload token all match.
// Reload is bumped by explicit refreshes so a forced re-fetch is never
// satisfied by an older in-flight result.
type QueryKey struct {
	s string
}

func NewQueryKey(bbox BBox, orgIDs, types []string, reload uint64) QueryKey {
	sorted := make([]string, len(types))
	copy(sorted, types)
	sort.Strings(sorted)
	return QueryKey{s: fmt.Sprintf("%s|%s|%s|%d",
		bbox.String(),
		joinQuoted(orgIDs),
		joinQuoted(sorted),
		reload,
	)}
}

// joinQuoted quotes each element so ids containing the "," or "|"
// delimiters cannot make two distinct input tuples render equal.
func joinQuoted(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ",")
}

func (k QueryKey) String() string { return k.s }

func (k QueryKey) IsZero() bool { return k.s == "" }
