package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/fieldprep/internal/catalog"
)

type fixture struct {
	server *Server
	store  *catalog.Store
	check  catalog.SiteCheck
	imgs   []*catalog.Image
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()

	survivor := &catalog.Image{
		PhotoID: "P001", SiteID: "S01", SiteName: "riverbed", City: "Brno",
		InputFolder: "2026-05-01/riverbed/jn", InputName: "a.jpg",
		OutputName: "20260501_S01-P001_Brno_riverbed_JN.jpg",
	}
	partner := &catalog.Image{
		PhotoID: "P002", SiteID: "S02", SiteName: "quarry", City: "Ostrava",
		InputFolder: "2026-05-01/quarry/pk", InputName: "b.jpg",
		OutputName: "20260501_S02-P002_Ostrava_quarry_PK.jpg",
	}
	for _, img := range []*catalog.Image{survivor, partner} {
		if err := store.InsertImage(ctx, img); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkDeleted(ctx, []int64{partner.ID}); err != nil {
		t.Fatal(err)
	}

	run, err := store.NewRun(ctx, "dedup")
	if err != nil {
		t.Fatal(err)
	}

	check := catalog.SiteCheck{RunID: run.ID, ImageID: survivor.ID, PartnerID: partner.ID, Score: 0.95}
	if err := store.InsertSiteChecks(ctx, []catalog.SiteCheck{check}); err != nil {
		t.Fatal(err)
	}
	checks, err := store.ListSiteChecks(ctx)
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		server: NewServer(store, 0),
		store:  store,
		check:  checks[0],
		imgs:   []*catalog.Image{survivor, partner},
	}
}

func get(t *testing.T, h http.Handler, path string, into any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d, body %s", path, rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("GET %s: bad JSON: %v", path, err)
	}
}

func TestHealth(t *testing.T) {
	f := setup(t)
	var resp map[string]string
	get(t, f.server.Router(), "/api/v1/health", &resp)
	if resp["status"] != "ok" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}

func TestListChecks(t *testing.T) {
	f := setup(t)

	var checks []struct {
		ID       int64   `json:"id"`
		Score    float64 `json:"score"`
		Verified bool    `json:"verified"`
		Survivor struct {
			SiteID  string `json:"site_id"`
			Output  string `json:"output"`
			Deleted bool   `json:"deleted"`
		} `json:"survivor"`
		Partner struct {
			Deleted bool `json:"deleted"`
		} `json:"partner"`
	}
	get(t, f.server.Router(), "/api/v1/checks", &checks)

	if len(checks) != 1 {
		t.Fatalf("expected one check, got %d", len(checks))
	}
	c := checks[0]
	if c.Score != 0.95 || c.Verified {
		t.Errorf("unexpected check: %+v", c)
	}
	if c.Survivor.SiteID != "S01" || c.Survivor.Deleted {
		t.Errorf("unexpected survivor: %+v", c.Survivor)
	}
	if !c.Partner.Deleted {
		t.Error("the partner was deleted and must say so")
	}
}

func TestVerifyFlipsFlagAndImage(t *testing.T) {
	f := setup(t)
	router := f.server.Router()

	body := bytes.NewBufferString(`{"verified": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/1/verify", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status %d, body %s", rec.Code, rec.Body.String())
	}

	img, err := f.store.GetImage(context.Background(), f.check.ImageID)
	if err != nil {
		t.Fatal(err)
	}
	if !img.SiteVerified {
		t.Error("verification must flip the image's site_verified flag")
	}

	checks, _ := f.store.ListSiteChecks(context.Background())
	if !checks[0].Verified {
		t.Error("verification must flip the check's verified flag")
	}
}

func TestVerifyUnknownCheck(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/999/verify",
		bytes.NewBufferString(`{"verified": true}`))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	f := setup(t)

	var runs []struct {
		ID   string `json:"ID"`
		Kind string `json:"Kind"`
	}
	get(t, f.server.Router(), "/api/v1/runs", &runs)

	if len(runs) != 1 || runs[0].Kind != "dedup" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}
