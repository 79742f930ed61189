package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/status", s.getStatus)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)

			// Turn operations
			r.Post("/message", s.sendMessage)
			r.Post("/regenerate", s.regenerate)
			r.Post("/abort", s.abort)

			// Tree editing
			r.Route("/node/{nodeID}", func(r chi.Router) {
				r.Patch("/", s.editNode)
				r.Delete("/", s.deleteSubtree)
				r.Post("/toggle", s.toggleEnabled)
				r.Post("/move", s.moveNode)
				r.Post("/branch", s.createBranch)
				r.Post("/activate", s.switchActiveLeaf)
				r.Post("/sibling", s.switchSibling)
			})

			// History
			r.Post("/undo", s.undo)
			r.Post("/redo", s.redo)

			// Context preview
			r.Get("/preview", s.previewContext)
		})
	})

	// Agent catalog
	r.Get("/agent", s.listAgents)

	// Model catalog
	r.Get("/model", s.listModels)

	// Event streaming (SSE)
	r.Get("/event", s.globalEvents)
	r.Get("/session/{sessionID}/event", s.sessionEvents)
}
