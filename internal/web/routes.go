package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/fieldprep/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	review := handlers.NewReviewHandler(s.store)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/checks", review.ListChecks)
		r.Post("/checks/{id}/verify", review.Verify)
		r.Get("/pairs/duplicate", review.ListDuplicatePairs)
		r.Get("/pairs/cross-site", review.ListCrossSitePairs)
		r.Get("/runs", review.ListRuns)
	})

	// the renamed output images, for thumbnails in the review page
	s.router.Handle("/images/*", http.StripPrefix("/images/",
		http.FileServer(http.Dir(s.store.Root()))))

	s.router.Get("/", handlers.Index)
}
