package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/umarovb/agromap-core/internal/core/model"
)

var testBBox = model.BBox{MinLng: 69.1, MinLat: 41.2, MaxLng: 69.4, MaxLat: 41.4}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFetchByOrgWalksPages(t *testing.T) {
	total := fetchPageSize + 3
	var gotBBox, gotTypes, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/facilities" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotBBox = r.URL.Query().Get("bbox")
		gotTypes = r.URL.Query().Get("types")
		gotAuth = r.Header.Get("Authorization")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		start := (page - 1) * fetchPageSize
		end := start + fetchPageSize
		if end > total {
			end = total
		}
		items := make([]model.Facility, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, model.Facility{ID: fmt.Sprintf("f%d", i), OrgID: "org-1"})
		}
		_ = json.NewEncoder(w).Encode(facilityPage{Items: items, Page: page, PageSize: fetchPageSize, Total: total})
	}))
	defer srv.Close()

	u, err := NewUpstream(testLogger(), srv.Client(), srv.URL, "sekret")
	if err != nil {
		t.Fatalf("NewUpstream: %v", err)
	}

	got, err := u.FetchByOrg(context.Background(), "org-1", model.Query{BBox: testBBox, Types: []string{"FIELD", "ORCHARD"}})
	if err != nil {
		t.Fatalf("FetchByOrg: %v", err)
	}
	if len(got) != total {
		t.Fatalf("expected %d facilities across pages, got %d", total, len(got))
	}
	if gotBBox != testBBox.String() {
		t.Fatalf("bbox param = %q", gotBBox)
	}
	if gotTypes != "FIELD,ORCHARD" {
		t.Fatalf("types param = %q", gotTypes)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestFetchByOrgErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "org not visible", http.StatusForbidden)
	}))
	defer srv.Close()

	u, _ := NewUpstream(testLogger(), srv.Client(), srv.URL, "")
	_, err := u.FetchByOrg(context.Background(), "org-1", model.Query{BBox: testBBox, Types: []string{"FIELD"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "upstream status 403") {
		t.Fatalf("error %q must carry the status", err)
	}
	if !strings.Contains(err.Error(), "org not visible") {
		t.Fatalf("error %q must carry the body", err)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/facilities" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var in model.Facility
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		in.ID = "fac-42"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	u, _ := NewUpstream(testLogger(), srv.Client(), srv.URL, "")
	out, err := u.Create(context.Background(), model.Facility{OrgID: "org-1", Name: "Ombor", Type: "WAREHOUSE"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.ID != "fac-42" || out.Name != "Ombor" {
		t.Fatalf("unexpected created facility: %+v", out)
	}
}

func TestDeleteSendsPathID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	u, _ := NewUpstream(testLogger(), srv.Client(), srv.URL, "")
	if err := u.Delete(context.Background(), "fac-7"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotPath != "/api/facilities/fac-7" {
		t.Fatalf("path = %q", gotPath)
	}
}
