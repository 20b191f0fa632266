package protocol

import "errors"

var (
	ErrConfiguration      = errors.New("protocol: invalid configuration")
	ErrPermission         = errors.New("protocol: radio access denied")
	ErrTransport          = errors.New("protocol: transport failure")
	ErrIncompleteTransfer = errors.New("protocol: incomplete transfer")
	ErrInvalidMetadata    = errors.New("protocol: invalid metadata")
)
