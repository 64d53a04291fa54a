package sfu

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// PacketSource is the read side of an inbound track.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay reads src packet by packet and writes each one back out through the
// first bound sender. It returns nil when src ends and the first read, write
// or binding error otherwise. Nothing is retried.
func (t *RelayTrack) Relay(src PacketSource, logger *zerolog.Logger) error {
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("relay source ended")
				return nil
			}
			logger.Error().Err(err).Msg("relay read RTP error, stopping")
			return err
		}
		if err := t.forward(pkt); err != nil {
			if errors.Is(err, ErrTrackNotBound) {
				logger.Warn().Msg("relay track not bound yet, stopping")
			} else {
				logger.Error().Err(err).Msg("relay write RTP error, stopping")
			}
			return err
		}
		if t.onForward != nil {
			t.onForward()
		}
	}
}

// forward rewrites only the SSRC, on a copy of the header.
func (t *RelayTrack) forward(pkt *rtp.Packet) error {
	c, ok := t.primary()
	if !ok {
		return ErrTrackNotBound
	}
	header := pkt.Header
	header.SSRC = uint32(c.SSRC())
	if _, err := c.WriteStream().WriteRTP(&header, pkt.Payload); err != nil {
		return fmt.Errorf("write rtp: %w", err)
	}
	return nil
}
