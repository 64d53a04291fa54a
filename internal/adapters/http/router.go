package http

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/dkeye/webrtc-echo/internal/adapters/signal"
	"github.com/dkeye/webrtc-echo/internal/app"
	"github.com/dkeye/webrtc-echo/internal/config"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// OfferHandler answers one offer.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer domain.Description) (domain.Description, error)
}

type SessionLister interface {
	Sessions() []app.SessionInfo
}

// Deps is everything the router serves. Nil fields disable their routes,
// except Offers which is required.
type Deps struct {
	Offers   OfferHandler
	Sessions SessionLister
	Events   signal.EventSource
	Limiter  *signal.RateLimiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Page is served on / and /index.html.
	Page []byte
}

// LoadPage reads the static document once. A missing file is not an error;
// the page routes then answer 404.
func LoadPage(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("module", "adapters.http").Str("html_file", path).Msg("html file not found, page disabled")
		return nil, nil
	}
	return data, err
}

func SetupRouter(ctx context.Context, cfg *config.ServerConfig, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	page := pageHandler(deps.Page)
	r.GET("/", page)
	r.GET("/index.html", page)

	r.POST("/offer", offerHandler(deps))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if deps.Sessions != nil {
		api.GET("/sessions", func(c *gin.Context) {
			sessions := deps.Sessions.Sessions()
			c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
		})
	}
	if deps.Events != nil {
		api.GET("/sessions/events", func(c *gin.Context) {
			if err := signal.ServeEvents(ctx, c.Writer, c.Request, deps.Events); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("event feed upgrade failed")
			}
		})
	}

	log.Info().
		Str("module", "adapters.http").
		Bool("page", deps.Page != nil).
		Bool("rate_limit", cfg.OfferRateLimit > 0).
		Msg("router setup")
	return r
}

func pageHandler(page []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if page == nil {
			c.String(http.StatusNotFound, "404 page not found")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}
