package pinning

import (
	"crypto/subtle"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/imagevault/storage"
)

// DefaultMaxSize bounds uploads accepted by Server.
const DefaultMaxSize = 32 << 20

// Server serves the pinning API and gateway routes over a storage.CAS.
type Server struct {
	CAS storage.CAS
	// APIKey and APISecret, when set, must match the request headers on upload.
	APIKey    string
	APISecret string
	MaxSize   int
	Logger    *zap.Logger
	// Now is used for reply timestamps.
	Now func() time.Time
}

// App builds a fiber app with the server's routes bound at the root.
func (s *Server) App() *fiber.App {
	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             limit + 64<<10,
		DisableStartupMessage: true,
	})
	s.BindTo(app)
	return app
}

func (s *Server) BindTo(parent fiber.Router) {
	parent.Post(PinPath, s.pin)
	parent.Get("/ipfs/:cid", s.fetch)
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) authorized(c *fiber.Ctx) bool {
	if s.APIKey == "" && s.APISecret == "" {
		return true
	}
	key := subtle.ConstantTimeCompare([]byte(c.Get(HeaderAPIKey)), []byte(s.APIKey))
	secret := subtle.ConstantTimeCompare([]byte(c.Get(HeaderAPISecret)), []byte(s.APISecret))
	return key&secret == 1
}

func (s *Server) pin(c *fiber.Ctx) error {
	if !s.authorized(c) {
		c.Status(fiber.StatusUnauthorized)
		return c.JSON(fiber.Map{"error": "invalid credentials"})
	}
	fh, err := c.FormFile(FormField)
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if fh.Size > int64(limit) {
		c.Status(fiber.StatusRequestEntityTooLarge)
		return c.JSON(fiber.Map{"error": storage.ErrTooLarge.Error()})
	}
	f, err := fh.Open()
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}

	id, err := s.CAS.Put(c.UserContext(), data)
	if err != nil {
		s.logger().Error("pin failed", zap.Int("size", len(data)), zap.Error(err))
		c.Status(fiber.StatusBadGateway)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	s.logger().Info("pinned", zap.Stringer("cid", id), zap.Int("size", len(data)))
	return c.JSON(PinResponse{
		IpfsHash:  id.String(),
		PinSize:   int64(len(data)),
		Timestamp: now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) fetch(c *fiber.Ctx) error {
	id, err := cid.Decode(c.Params("cid"))
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": storage.ErrInvalidCID.Error()})
	}
	data, err := s.CAS.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.Status(fiber.StatusNotFound)
		} else {
			s.logger().Error("fetch failed", zap.Stringer("cid", id), zap.Error(err))
			c.Status(fiber.StatusBadGateway)
		}
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}
