package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrTooManyBooks     = errors.New("too many active books")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrMalformedMessage = errors.New("malformed message")
	ErrNotRunning       = errors.New("feed manager not running")
)
