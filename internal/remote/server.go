package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/schema"
)

// DefaultBodyLimit caps the size of a save request.
const DefaultBodyLimit = 32 << 20

// ServerOptions configures a Server.
type ServerOptions struct {
	BlockedTenants []string
	BodyLimit      int
	Clock          ids.Clock
	Logger         *logger.Logger
}

// Server is the remote key-value service.
type Server struct {
	kv      kv.Store
	blocked map[string]bool
	clock   ids.Clock
	log     *logger.Logger
	app     *fiber.App

	// mu serializes read-increment-write of revisions.
	mu sync.Mutex
}

// NewServer builds the service over store and registers its routes.
func NewServer(store kv.Store, opts ServerOptions) *Server {
	if opts.Clock == nil {
		opts.Clock = ids.SystemClock
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		kv:      store,
		blocked: make(map[string]bool, len(opts.BlockedTenants)),
		clock:   opts.Clock,
		log:     log.With("remote"),
	}
	for _, t := range opts.BlockedTenants {
		if t = strings.TrimSpace(t); t != "" {
			s.blocked[t] = true
		}
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "erpstore-remote",
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"ok": false, "error": err.Error()})
		},
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "serverTime": schema.FormatTime(s.clock())})
	})

	s.app.Get("/api/db/:tenant", s.requireTenant, s.load)
	s.app.Post("/api/db/:tenant", s.requireTenant, s.save)
	s.app.Get("/api/db/:tenant/status", s.requireTenant, s.status)
}

// App exposes the fiber application, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Int("blocked_tenants", len(s.blocked)).Msg("remote service listening")
	return s.app.Listen(addr)
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requireTenant rejects blank tenants and answers blocked ones.
func (s *Server) requireTenant(c *fiber.Ctx) error {
	tenant := strings.TrimSpace(c.Params("tenant"))
	if tenant == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "tenant_required"})
	}
	if s.blocked[tenant] {
		s.log.Warn().Str("tenant", tenant).Str("path", c.Path()).Msg("blocked tenant refused")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "blocked": true})
	}
	c.Locals("tenant", tenant)
	return c.Next()
}

func tenantOf(c *fiber.Ctx) string {
	t, _ := c.Locals("tenant").(string)
	return t
}

func tenantKey(tenant string) string { return "tenant:" + tenant }

func (s *Server) read(ctx context.Context, tenant string) (*record, error) {
	text, ok, err := s.kv.Get(ctx, tenantKey(tenant))
	if err != nil {
		return nil, fmt.Errorf("read tenant %s: %w", tenant, err)
	}
	if !ok {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return nil, fmt.Errorf("decode tenant %s: %w", tenant, err)
	}
	return &rec, nil
}

func (s *Server) load(c *fiber.Ctx) error {
	rec, err := s.read(c.UserContext(), tenantOf(c))
	if err != nil {
		return err
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(LoadResponse{OK: false, Error: ErrorNotFound})
	}
	return c.JSON(LoadResponse{OK: true, DB: rec.DB, Meta: &Meta{Rev: rec.Rev, UpdatedAt: rec.UpdatedAt}})
}

func (s *Server) status(c *fiber.Ctx) error {
	rec, err := s.read(c.UserContext(), tenantOf(c))
	if err != nil {
		return err
	}
	out := StatusResponse{OK: true, ServerTime: schema.FormatTime(s.clock())}
	if rec != nil {
		out.Exists = true
		out.Rev = rec.Rev
		out.UpdatedAt = rec.UpdatedAt
	}
	return c.JSON(out)
}

func (s *Server) save(c *fiber.Ctx) error {
	var in SaveRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(SaveResponse{OK: false, Error: "invalid_body"})
	}
	if len(in.DB) == 0 || !json.Valid(in.DB) || in.DB[0] != '{' {
		return c.Status(fiber.StatusBadRequest).JSON(SaveResponse{OK: false, Error: "db_must_be_object"})
	}

	tenant := tenantOf(c)
	ctx := c.UserContext()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.read(ctx, tenant)
	if err != nil {
		return err
	}
	rec := record{
		Rev:       1,
		UpdatedAt: schema.FormatTime(s.clock()),
		Token:     in.Token,
		Meta:      in.Meta,
		DB:        in.DB,
	}
	if prev != nil {
		rec.Rev = prev.Rev + 1
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode tenant %s: %w", tenant, err)
	}
	if err := s.kv.Set(ctx, tenantKey(tenant), string(data)); err != nil {
		return fmt.Errorf("write tenant %s: %w", tenant, err)
	}

	s.log.Info().Str("tenant", tenant).Int64("rev", rec.Rev).Int("bytes", len(in.DB)).Msg("tenant saved")
	return c.JSON(SaveResponse{OK: true, SavedAt: rec.UpdatedAt, Bytes: len(in.DB), Rev: rec.Rev})
}
