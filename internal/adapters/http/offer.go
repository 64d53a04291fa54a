package http

import (
	"net/http"

	"github.com/dkeye/webrtc-echo/internal/adapters/signal"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// offerHandler turns one POST /offer into one answer. Failures stay local to
// the request.
func offerHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		remote := c.ClientIP()
		if !deps.Limiter.Allow(remote) {
			deps.Metrics.Offer(metrics.OfferRateLimited)
			log.Warn().Str("module", "adapters.http").Str("remote", remote).Msg("offer rate limited")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many offers"})
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			deps.Metrics.Offer(metrics.OfferMalformed)
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		offer, err := signal.ParseOffer(body)
		if err != nil {
			deps.Metrics.Offer(metrics.OfferMalformed)
			log.Warn().Err(err).Str("module", "adapters.http").Str("remote", remote).Msg("malformed offer")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		answer, err := deps.Offers.HandleOffer(c.Request.Context(), offer)
		if err != nil {
			deps.Metrics.Offer(metrics.OfferFailed)
			log.Error().Err(err).Str("module", "adapters.http").Str("remote", remote).Msg("offer failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		deps.Metrics.Offer(metrics.OfferAccepted)
		c.JSON(http.StatusOK, answer)
	}
}
