package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session/{sessionID}", func(r chi.Router) {
		// Messages
		r.Get("/message", s.getMessages)
		r.Post("/message", s.sendMessage)
		r.Post("/compact", s.compactSession)

		// Background processes
		r.Get("/process", s.listProcesses)
		r.Get("/process/feed", s.processFeed) // SSE
		r.Delete("/process/{processID}", s.terminateProcess)

		// Fleet
		r.Get("/fleet", s.listFleet)
		r.Post("/fleet/kill", s.killFleet)
		r.Post("/fleet/steer", s.steerFleet)

		// Transcript
		r.Get("/transcript", s.exportTranscript)
		r.Post("/share", s.shareSession)
		r.Delete("/share", s.unshareSession)
	})

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
}
