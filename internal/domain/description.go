// Package domain contains session entities without engine logic, just meta-data
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type SessionID string

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Description is the signaling payload exchanged once per direction.
// SDP carries every gathered candidate; nothing is trickled afterwards.
type Description struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// DecodeDescription parses a JSON description and checks its type tag.
func DecodeDescription(data []byte, want SDPType) (Description, error) {
	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return Description{}, fmt.Errorf("%w: decode %s: %w", ErrNegotiation, want, err)
	}
	if err := d.Expect(want); err != nil {
		return Description{}, err
	}
	return d, nil
}

// Expect reports ErrNegotiation unless the description has the wanted type and a body.
func (d Description) Expect(want SDPType) error {
	if SDPType(strings.ToLower(string(d.Type))) != want {
		return fmt.Errorf("%w: type %q, want %q", ErrNegotiation, d.Type, want)
	}
	if strings.TrimSpace(d.SDP) == "" {
		return fmt.Errorf("%w: empty sdp in %s", ErrNegotiation, want)
	}
	return nil
}
