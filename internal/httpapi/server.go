// Package httpapi exposes the ingestion and admin HTTP surface.
//
// Routing here is thin glue: requests are validated, classified and handed
// to the fanout dispatcher; callers get the delivery report back so they
// can alert on partial failure.
package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"vestbot/internal/category"
	"vestbot/internal/fanout"
	"vestbot/internal/news"
	logx "vestbot/pkg/logx"
)

type Config struct {
	Addr       string
	AdminToken string
}

// Deliverer is the single core entry point this layer drives.
type Deliverer interface {
	Deliver(ctx context.Context, content news.Content, cat string) (fanout.Report, error)
}

type Server struct {
	cfg      Config
	app      *fiber.App
	dispatch Deliverer
	catalog  *category.Catalog
	log      logx.Logger
}

func New(cfg Config, dispatch Deliverer, catalog *category.Catalog, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Server{cfg: cfg, dispatch: dispatch, catalog: catalog, log: log}

	app := fiber.New(fiber.Config{
		ReadTimeout:           10 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Post("/telegram/news", s.handleNews)

	admin := app.Group("/admin", s.requireAdmin)
	admin.Post("/send-message", s.handleAdminSend)

	s.app = app
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", logx.String("addr", s.cfg.Addr))
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(sctx)
	}
}

// requireAdmin guards the admin group with a bearer token from config.
// An empty configured token disables the whole admin surface.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if s.cfg.AdminToken == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "admin api disabled"})
	}
	auth := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token != s.cfg.AdminToken {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

type newsRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (r newsRequest) Validate(catalog *category.Catalog) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required, validation.Length(1, 65536)),
		validation.Field(&r.Category, validation.By(categoryRule(catalog))),
	)
}

type adminSendRequest struct {
	Message   string   `json:"message"`
	Category  string   `json:"category"`
	ImageURLs []string `json:"imageUrls"`
}

func (r adminSendRequest) Validate(catalog *category.Catalog) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, 65536)),
		validation.Field(&r.Category, validation.By(categoryRule(catalog))),
		validation.Field(&r.ImageURLs, validation.Each(validation.Length(1, 2048))),
	)
}

func categoryRule(catalog *category.Catalog) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" || catalog.Has(s) {
			return nil
		}
		return fmt.Errorf("unknown category %q", s)
	}
}

func (s *Server) handleNews(c *fiber.Ctx) error {
	var req newsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if err := req.Validate(s.catalog); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	content := news.Classify(req.Content)
	rep, err := s.dispatch.Deliver(c.UserContext(), content, req.Category)
	if err != nil {
		s.log.Error("news delivery failed", logx.String("category", req.Category), logx.Err(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delivery failed"})
	}
	return c.JSON(reportJSON(rep))
}

func (s *Server) handleAdminSend(c *fiber.Ctx) error {
	var req adminSendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if err := req.Validate(s.catalog); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	content := news.Classify(req.Message)
	// Explicit image URLs from the admin form come before anything the
	// classifier extracted from the message body.
	if len(req.ImageURLs) > 0 {
		content.Images = mergeImages(req.ImageURLs, content.Images)
	}

	rep, err := s.dispatch.Deliver(c.UserContext(), content, req.Category)
	if err != nil {
		s.log.Error("admin delivery failed", logx.String("category", req.Category), logx.Err(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delivery failed"})
	}
	return c.JSON(reportJSON(rep))
}

func mergeImages(explicit, extracted []string) []string {
	seen := make(map[string]bool, len(explicit)+len(extracted))
	out := make([]string, 0, len(explicit)+len(extracted))
	for _, u := range append(append([]string(nil), explicit...), extracted...) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func reportJSON(rep fanout.Report) fiber.Map {
	return fiber.Map{
		"report_id": rep.ID,
		"category":  rep.Category,
		"attempted": rep.Attempted,
		"succeeded": rep.Succeeded,
		"failed":    rep.Failed,
	}
}
