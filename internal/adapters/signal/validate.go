package signal

import (
	"errors"
	"fmt"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/pion/sdp/v3"
)

var errNoMedia = errors.New("no media sections")

// ValidateSDP parses raw and requires at least one media section.
func ValidateSDP(raw string) error {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("%w: parse sdp: %w", domain.ErrNegotiation, err)
	}
	if len(sd.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrNegotiation, errNoMedia)
	}
	return nil
}

// ParseOffer decodes a JSON offer and validates its SDP.
func ParseOffer(data []byte) (domain.Description, error) {
	offer, err := domain.DecodeDescription(data, domain.SDPTypeOffer)
	if err != nil {
		return domain.Description{}, err
	}
	if err := ValidateSDP(offer.SDP); err != nil {
		return domain.Description{}, err
	}
	return offer, nil
}
