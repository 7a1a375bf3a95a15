package domain

import "errors"

var (
	ErrClientNotRegistered = errors.New("client not registered")
	ErrWriterStopped       = errors.New("client writer stopped")
	ErrSendQueueFull       = errors.New("client send queue full")
	ErrClientClosed        = errors.New("client already closed")
	ErrHubStopped          = errors.New("hub stopped")
)
