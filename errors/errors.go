package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrHandlerPanic      = fmt.Errorf("handler panic")
	ErrMissingUsername   = fmt.Errorf("username is required")
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrInvalidPassword   = fmt.Errorf("invalid room password")
	ErrValidation        = fmt.Errorf("validation failure")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrUnknownEvent      = fmt.Errorf("unknown event")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrInvalidHash       = fmt.Errorf("invalid hash format")
	ErrEngineStopped     = fmt.Errorf("engine stopped")
	ErrSlowConsumer      = fmt.Errorf("send queue is full")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
)
