package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/rs/zerolog/log"
)

// maxAnswerBytes bounds how much of a response body is read.
const maxAnswerBytes = 1 << 20

// Client posts one offer to the echo server and returns its answer.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Exchange sends offer exactly once. Transport problems wrap
// domain.ErrTransport; a response that is not a usable answer wraps
// domain.ErrNegotiation.
func (c *Client) Exchange(ctx context.Context, offer domain.Description) (domain.Description, error) {
	body, err := json.Marshal(offer)
	if err != nil {
		return domain.Description{}, fmt.Errorf("%w: encode offer: %w", domain.ErrNegotiation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Description{}, fmt.Errorf("%w: build request: %w", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Info().Str("module", "signal").Str("url", c.url).Int("bytes", len(body)).Msg("posting offer")
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Description{}, fmt.Errorf("%w: post offer: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return domain.Description{}, fmt.Errorf("%w: read answer: %w", domain.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Description{}, fmt.Errorf("%w: unexpected status %d: %s",
			domain.ErrTransport, resp.StatusCode, bytes.TrimSpace(data))
	}

	answer, err := domain.DecodeDescription(data, domain.SDPTypeAnswer)
	if err != nil {
		return domain.Description{}, err
	}
	if err := ValidateSDP(answer.SDP); err != nil {
		return domain.Description{}, err
	}
	log.Info().Str("module", "signal").Int("bytes", len(data)).Msg("received answer")
	return answer, nil
}
