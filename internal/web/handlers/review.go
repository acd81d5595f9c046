// Package handlers implements the review API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/fieldprep/internal/catalog"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ReviewHandler serves the audit tables and the verification workflow.
type ReviewHandler struct {
	store *catalog.Store
}

// NewReviewHandler creates a review handler over an opened catalog.
func NewReviewHandler(store *catalog.Store) *ReviewHandler {
	return &ReviewHandler{store: store}
}

// imageRef is the subset of an image record the review page needs.
type imageRef struct {
	ID      int64  `json:"id"`
	PhotoID string `json:"photo_id"`
	SiteID  string `json:"site_id"`
	Site    string `json:"site"`
	City    string `json:"city"`
	Output  string `json:"output"` // relative path, served under /images/
	Deleted bool   `json:"deleted"`
}

func toRef(img *catalog.Image) imageRef {
	return imageRef{
		ID:      img.ID,
		PhotoID: img.PhotoID,
		SiteID:  img.SiteID,
		Site:    img.SiteName,
		City:    img.City,
		Output:  img.OutputRel(),
		Deleted: img.Deleted,
	}
}

func (h *ReviewHandler) imageIndex(r *http.Request) (map[int64]*catalog.Image, error) {
	images, err := h.store.ListImages(r.Context(), true)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*catalog.Image, len(images))
	for _, img := range images {
		byID[img.ID] = img
	}
	return byID, nil
}

type checkResponse struct {
	ID       int64    `json:"id"`
	Score    float64  `json:"score"`
	Verified bool     `json:"verified"`
	Survivor imageRef `json:"survivor"`
	Partner  imageRef `json:"partner"`
}

// ListChecks returns the site-verification queue with both images of
// each check resolved.
func (h *ReviewHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := h.store.ListSiteChecks(r.Context())
	if err != nil {
		log.Printf("listing site checks: %v", err)
		respondError(w, http.StatusInternalServerError, "could not list site checks")
		return
	}
	byID, err := h.imageIndex(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load images")
		return
	}

	resp := make([]checkResponse, 0, len(checks))
	for _, c := range checks {
		cr := checkResponse{ID: c.ID, Score: c.Score, Verified: c.Verified}
		if img, ok := byID[c.ImageID]; ok {
			cr.Survivor = toRef(img)
		}
		if img, ok := byID[c.PartnerID]; ok {
			cr.Partner = toRef(img)
		}
		resp = append(resp, cr)
	}
	respondJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	Verified bool `json:"verified"`
}

// Verify flips the verified flag of one site check and the
// site_verified flag of its surviving image.
func (h *ReviewHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid check id")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.SetSiteVerified(r.Context(), id, req.Verified); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(w, http.StatusNotFound, "check not found")
			return
		}
		log.Printf("verifying check %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "could not update check")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "verified": req.Verified})
}

type pairResponse struct {
	ID      int64    `json:"id"`
	RunID   string   `json:"run_id"`
	Score   float64  `json:"score"`
	Outcome string   `json:"outcome,omitempty"`
	Image1  imageRef `json:"image1"`
	Image2  imageRef `json:"image2"`
}

// ListDuplicatePairs returns every same-site resolution ever recorded.
func (h *ReviewHandler) ListDuplicatePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.store.ListDuplicatePairs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list duplicate pairs")
		return
	}
	byID, err := h.imageIndex(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load images")
		return
	}

	resp := make([]pairResponse, 0, len(pairs))
	for _, p := range pairs {
		pr := pairResponse{ID: p.ID, RunID: p.RunID, Score: p.Score, Outcome: string(p.Outcome)}
		if img, ok := byID[p.Image1ID]; ok {
			pr.Image1 = toRef(img)
		}
		if img, ok := byID[p.Image2ID]; ok {
			pr.Image2 = toRef(img)
		}
		resp = append(resp, pr)
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListCrossSitePairs returns the kept cross-site matches.
func (h *ReviewHandler) ListCrossSitePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.store.ListCrossSitePairs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list cross-site pairs")
		return
	}
	byID, err := h.imageIndex(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load images")
		return
	}

	resp := make([]pairResponse, 0, len(pairs))
	for _, p := range pairs {
		pr := pairResponse{ID: p.ID, RunID: p.RunID, Score: p.Score}
		if img, ok := byID[p.Image1ID]; ok {
			pr.Image1 = toRef(img)
		}
		if img, ok := byID[p.Image2ID]; ok {
			pr.Image2 = toRef(img)
		}
		resp = append(resp, pr)
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListRuns returns run history, newest first.
func (h *ReviewHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}
