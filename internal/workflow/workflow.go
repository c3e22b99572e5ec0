// Package workflow runs the draw-to-create session: a user draws a
// shape on the map, fills in attributes and submits a new facility.
// One session instance tracks one drawing at a time.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/core/model"
	"github.com/umarovb/agromap-core/internal/geom"
	"github.com/umarovb/agromap-core/internal/typereg"
)

type State string

const (
	StateIdle           State = "idle"
	StateDrawing        State = "drawing"
	StateCaptured       State = "captured"
	StateAttributesOpen State = "attributes_open"
	StateSubmitting     State = "submitting"
	StateError          State = "error"
)

// Writer persists a new facility.
type Writer interface {
	Create(ctx context.Context, f model.Facility) (model.Facility, error)
}

// Draft is the in-progress facility. Geometry and center come from the
// drawn shape, the rest from the attribute form.
type Draft struct {
	OrgID      string
	Name       string
	Type       string
	Status     string
	Attributes map[string]any
	Geometry   orb.Geometry
	Center     *geom.Centroid
	AreaM2     float64
}

var ErrInvalidTransition = errors.New("invalid workflow transition")

type Session struct {
	writer  Writer
	reg     *typereg.Registry
	onSaved func()
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	draft   Draft
	lastErr error
}

func NewSession(w Writer, reg *typereg.Registry, onSaved func(), log zerolog.Logger) *Session {
	return &Session{
		writer:  w,
		reg:     reg,
		onSaved: onSaved,
		log:     log,
		state:   StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	if d.Attributes != nil {
		cp := make(map[string]any, len(d.Attributes))
		for k, v := range d.Attributes {
			cp[k] = v
		}
		d.Attributes = cp
	}
	return d
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Begin starts a new drawing. Only valid from Idle.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateDrawing
	s.draft = Draft{Status: model.StatusActive, Attributes: map[string]any{}}
	s.lastErr = nil
	return nil
}

// Cancel abandons the session from any state and clears the draft.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.draft = Draft{}
	s.lastErr = nil
}

// Capture takes the drawn geometry, derives the marker center and the
// suggested area. A malformed shape keeps the session in Drawing so
// the user can redraw.
func (s *Session) Capture(g orb.Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDrawing {
		return fmt.Errorf("%w: capture from %s", ErrInvalidTransition, s.state)
	}

	c, ok := geom.CentroidOf(g)
	if !ok {
		return errors.New("drawn shape has no usable center, draw again")
	}
	area, _ := geom.AreaM2(g)

	s.draft.Geometry = g
	s.draft.Center = &c
	s.draft.AreaM2 = area
	s.state = StateCaptured
	return nil
}

// Open moves to the attribute form.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCaptured {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateAttributesOpen
	return nil
}

func (s *Session) SetOrg(orgID string) { s.editDraft(func(d *Draft) { d.OrgID = orgID }) }

func (s *Session) SetName(name string) { s.editDraft(func(d *Draft) { d.Name = name }) }

func (s *Session) SetStatus(status string) { s.editDraft(func(d *Draft) { d.Status = status }) }

// SetType switches the facility type and autofills the schema's area
// fields from the drawn shape.
func (s *Session) SetType(typ string) {
	s.editDraft(func(d *Draft) {
		d.Type = typ
		if s.reg != nil && d.AreaM2 > 0 {
			d.Attributes = s.reg.AutoFill(typ, d.Attributes, d.AreaM2)
		}
	})
}

func (s *Session) SetAttribute(key string, val any) {
	s.editDraft(func(d *Draft) {
		if d.Attributes == nil {
			d.Attributes = map[string]any{}
		}
		d.Attributes[key] = val
	})
}

// draft edits are only meaningful with the form open, including after
// a failed submit.
func (s *Session) editDraft(apply func(*Draft)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAttributesOpen && s.state != StateError {
		return
	}
	apply(&s.draft)
}

// Submit validates the draft and persists it. Validation failures are
// returned as per-field reasons and leave the form open. A writer
// failure moves to Error with the draft retained for retry. Success
// returns to Idle and signals the refresh callback exactly once.
func (s *Session) Submit(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	if s.state != StateAttributesOpen && s.state != StateError {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.state)
	}

	d := s.draft
	reasons := s.validateLocked(&d)
	if len(reasons) > 0 {
		s.state = StateAttributesOpen
		s.mu.Unlock()
		return reasons, nil
	}

	d.Attributes = typereg.CoerceNumbers(d.Attributes)
	s.draft.Attributes = d.Attributes
	s.state = StateSubmitting
	s.mu.Unlock()

	fac, err := s.buildFacility(d)
	if err == nil {
		fac, err = s.writer.Create(ctx, fac)
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("org_id", d.OrgID).Msg("facility create failed")
		return nil, err
	}
	s.state = StateIdle
	s.draft = Draft{}
	s.lastErr = nil
	s.mu.Unlock()

	s.log.Info().Str("facility_id", fac.ID).Str("org_id", fac.OrgID).Msg("facility created")
	if s.onSaved != nil {
		s.onSaved()
	}
	return nil, nil
}

func (s *Session) validateLocked(d *Draft) map[string]string {
	reasons := map[string]string{}
	if d.OrgID == "" {
		reasons["orgId"] = "organization is required"
	}
	if strings.TrimSpace(d.Name) == "" {
		reasons["name"] = "name is required"
	}
	if d.Geometry == nil || d.Center == nil {
		reasons["geometry"] = "a drawn shape is required"
	}
	if d.Status != "" && !model.ValidStatus(d.Status) {
		reasons["status"] = "unknown status"
	}
	if s.reg != nil {
		attrs := typereg.CoerceNumbers(d.Attributes)
		for k, v := range s.reg.Validate(d.Type, attrs) {
			reasons[k] = v
		}
	}
	return reasons
}

func (s *Session) buildFacility(d Draft) (model.Facility, error) {
	gj, err := geojson.NewGeometry(d.Geometry).MarshalJSON()
	if err != nil {
		return model.Facility{}, fmt.Errorf("encode geometry: %w", err)
	}
	lat, lng := d.Center.Lat, d.Center.Lng
	status := d.Status
	if status == "" {
		status = model.StatusActive
	}
	return model.Facility{
		OrgID:      d.OrgID,
		Name:       strings.TrimSpace(d.Name),
		Type:       d.Type,
		Status:     status,
		Lat:        &lat,
		Lng:        &lng,
		Attributes: d.Attributes,
		Geometry:   gj,
	}, nil
}
