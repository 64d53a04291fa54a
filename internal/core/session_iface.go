package core

//go:generate mockgen -source=session_iface.go -destination=mocks/session_iface_mock.go -package=mocks

import "github.com/dkeye/webrtc-echo/internal/domain"

// SessionHandle is the part of a session the registry needs for cleanup.
type SessionHandle interface {
	ID() domain.SessionID
	Close() error
}
