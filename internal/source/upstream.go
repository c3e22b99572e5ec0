// Package source provides facility data sources for the fetch
// pipeline: the upstream facility API client and a Redis read-through
// wrapper around any source.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/umarovb/agromap-core/internal/core/model"
	"github.com/umarovb/agromap-core/internal/core/observability"
)

const fetchPageSize = 500

// Upstream talks to the facility admin API.
type Upstream struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  *url.URL
	apiKey   string
	startNow func() time.Time // for tests
}

func NewUpstream(logger *slog.Logger, client *http.Client, base, apiKey string) (*Upstream, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse facility api url: %w", err)
	}
	return &Upstream{
		logger:   logger,
		client:   client,
		baseURL:  u,
		apiKey:   apiKey,
		startNow: time.Now,
	}, nil
}

type facilityPage struct {
	Items    []model.Facility `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
}

// FetchByOrg lists facilities of one org inside the bbox, walking
// pages until the API runs out.
func (u *Upstream) FetchByOrg(ctx context.Context, orgID string, q model.Query) ([]model.Facility, error) {
	var all []model.Facility
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("orgId", orgID)
		params.Set("bbox", q.BBox.String())
		if len(q.Types) > 0 {
			params.Set("types", strings.Join(q.Types, ","))
		}
		params.Set("page", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(fetchPageSize))

		var pg facilityPage
		if err := u.getJSON(ctx, "/api/facilities", params, &pg); err != nil {
			return nil, err
		}
		all = append(all, pg.Items...)
		if len(pg.Items) < fetchPageSize {
			return all, nil
		}
	}
}

// GetByID returns one facility.
func (u *Upstream) GetByID(ctx context.Context, id string) (model.Facility, error) {
	var out model.Facility
	if err := u.getJSON(ctx, "/api/facilities/"+url.PathEscape(id), nil, &out); err != nil {
		return model.Facility{}, err
	}
	return out, nil
}

// Create persists a new facility and returns it with the server-side
// fields filled in.
func (u *Upstream) Create(ctx context.Context, f model.Facility) (model.Facility, error) {
	var out model.Facility
	if err := u.writeJSON(ctx, http.MethodPost, "/api/facilities", f, &out); err != nil {
		return model.Facility{}, err
	}
	return out, nil
}

// Update patches an existing facility, addressed by f.ID.
func (u *Upstream) Update(ctx context.Context, f model.Facility) (model.Facility, error) {
	var out model.Facility
	if err := u.writeJSON(ctx, http.MethodPatch, "/api/facilities/"+url.PathEscape(f.ID), f, &out); err != nil {
		return model.Facility{}, err
	}
	return out, nil
}

func (u *Upstream) Delete(ctx context.Context, id string) error {
	req, err := u.newRequest(ctx, http.MethodDelete, "/api/facilities/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	return u.do(req, nil)
}

func (u *Upstream) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := u.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return u.do(req, out)
}

func (u *Upstream) writeJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := u.newRequest(ctx, method, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req, out)
}

func (u *Upstream) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	ref := *u.baseURL
	ref.Path = strings.TrimRight(ref.Path, "/") + path
	if params != nil {
		ref.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, ref.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}
	return req, nil
}

func (u *Upstream) do(req *http.Request, out any) error {
	start := u.startNow()
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("facility-api", dur.Seconds())
	u.logger.Debug("upstream call done",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
