package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoutes sets up all the API endpoints and middleware for the application.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	// --- Global Middleware (Applied to ALL routes) ---
	r.Use(requestLogger)
	r.Use(middleware.Recoverer) // Recovers from panics and returns a 500 error

	// --- REST API Group with CORS ---
	// All routes defined within this group are prefixed with "/api/v1".
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			// In production, tighten this to the frontend's domain.
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", s.config.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300, // How long the browser can cache preflight results
		}))

		// Auth & account recovery routes
		r.Post("/users/register", s.handleRegisterUser)
		r.Post("/users/login", s.handleLoginUser)
		r.Get("/users/{username}/security-question", s.handleGetSecurityQuestion)
		r.Post("/users/recover", s.handleRecoverPassword)

		// The standalone email dispatch endpoint stays unauthenticated.
		r.Post("/send-email", s.handleSendEmail)

		// --- Authenticated REST Routes ---
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Notification stream (SSE)
			r.Get("/notifications/stream", s.handleSSE)

			// User routes
			r.Get("/users/me", s.handleGetMyProfile)
			r.Get("/users", s.handleListUsers)

			// Game list (read-only for regular users)
			r.Get("/games", s.handleListGames)

			// Invite routes
			r.Post("/invites", s.handleSendInvites)
			r.Get("/notifications", s.handleGetMyNotifications)
			r.Post("/notifications/{notificationID}/accept", s.handleAcceptNotification)
			r.Post("/notifications/{notificationID}/decline", s.handleDeclineNotification)

			// --- Admin Routes ---
			r.Group(func(r chi.Router) {
				r.Use(s.adminMiddleware)

				r.Get("/admin/users", s.handleAdminListUsers)
				r.Get("/admin/users/{userID}", s.handleAdminGetUser)
				r.Patch("/admin/users/{userID}", s.handleAdminUpdateUser)
				r.Delete("/admin/users/{userID}", s.handleAdminDeleteUser)

				r.Post("/admin/games", s.handleAdminCreateGame)
				r.Patch("/admin/games/{gameName}", s.handleAdminRenameGame)
				r.Delete("/admin/games/{gameName}", s.handleAdminDeleteGame)

				r.Get("/admin/stats", s.handleAdminGetStats)
			})
		})
	})
}
