package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Routes bundles the handlers mounted on the API
type Routes struct {
	Projects     *ProjectHandler
	Applications *ApplicationHandler
	Wishlist     *WishlistHandler
	Profiles     *ProfileHandler
	Admin        *AdminHandler
	Feed         *FeedHandler
	Health       *HealthHandler
}

// RouteOptions carries the middleware placed in front of the routes.
// Nil limiters are skipped.
type RouteOptions struct {
	Auth             fiber.Handler
	AdminOnly        fiber.Handler
	WriteLimiter     fiber.Handler
	WebSocketLimiter fiber.Handler
	WebSocket        websocket.Config
}

// Mount registers every endpoint on app
func (r *Routes) Mount(app *fiber.App, opts RouteOptions) {
	app.Get("/health", r.Health.Handle)

	api := app.Group("/api", opts.Auth)
	if opts.WriteLimiter != nil {
		api.Use(opts.WriteLimiter)
	}

	// Projects
	api.Get("/projects", r.Projects.List)
	api.Post("/projects", r.Projects.Create)
	api.Get("/projects/:id", r.Projects.Get)
	api.Patch("/projects/:id", r.Projects.Update)
	api.Delete("/projects/:id", r.Projects.Delete)
	api.Get("/users/:id/projects", r.Projects.ListByCreator)

	// Applications
	api.Post("/projects/:id/applications", r.Applications.Apply)
	api.Get("/projects/:id/applications", r.Applications.ListForProject)
	api.Get("/projects/:id/applications/me", r.Applications.Mine)
	api.Patch("/applications/:id/status", r.Applications.UpdateStatus)
	api.Get("/me/applications", r.Applications.ListMine)

	// Wishlist
	api.Get("/me/saved", r.Wishlist.List)
	api.Put("/me/saved/:projectId", r.Wishlist.Save)
	api.Delete("/me/saved/:projectId", r.Wishlist.Unsave)
	api.Post("/me/saved/:projectId/toggle", r.Wishlist.Toggle)

	// Profiles
	api.Get("/me/profile", r.Profiles.Me)
	api.Patch("/me/profile", r.Profiles.UpdateMe)
	api.Get("/profiles/:username", r.Profiles.GetByUsername)

	// Operator endpoints
	admin := api.Group("/admin", opts.AdminOnly)
	admin.Post("/sweep", r.Admin.Sweep)
	admin.Post("/reconcile", r.Admin.Reconcile)
	admin.Get("/jobs", r.Admin.Jobs)

	// Change feed
	feed := []fiber.Handler{}
	if opts.WebSocketLimiter != nil {
		feed = append(feed, opts.WebSocketLimiter)
	}
	feed = append(feed, opts.Auth, r.Feed.Authorize, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(r.Feed.Handle, opts.WebSocket))
	app.Get("/ws/feed", feed...)
}
