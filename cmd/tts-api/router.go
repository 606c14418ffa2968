package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cmoscardi/textbook-tts/internal/observability"
)

// newRouter assembles the HTTP routes and middleware stack.
func newRouter(logger *observability.Logger, api *API) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", api.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", api.RegisterDocument)
		r.Post("/documents/{documentID}/parse", api.SubmitParse)
		r.Post("/documents/{documentID}/convert", api.SubmitConvert)
		r.Get("/parse-jobs/{jobID}", api.GetParseJob)
		r.Get("/convert-jobs/{jobID}", api.GetConvertJob)
	})

	return r
}
