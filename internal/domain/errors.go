package domain

import "errors"

var (
	// ErrNegotiation covers malformed descriptions and engine rejections.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrTransport covers request failures and non-200 responses.
	ErrTransport = errors.New("signaling transport failed")
)
