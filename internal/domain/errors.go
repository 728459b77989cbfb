package domain

import "errors"

var (
	ErrNotFound        = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized token")
	ErrSessionFull     = errors.New("session is full")
	ErrNotReady        = errors.New("peer data not ready")
	ErrConflict        = errors.New("conflicting session update")
	ErrInvalidArgument = errors.New("invalid argument")
)
