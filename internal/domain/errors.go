package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
	ErrNoMarkets     = errors.New("no markets discovered")
	ErrWouldCross    = errors.New("maker order would cross the spread")
	ErrFillTimeout   = errors.New("no fill before timeout")
	ErrAlreadyClosed = errors.New("position already closed")
	ErrAdmission     = errors.New("position admission rejected")
	ErrPositionOpen  = errors.New("position already open for token")
)
