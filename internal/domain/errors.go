package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidNetwork   = errors.New("invalid network")
	ErrMissingSerial    = errors.New("no serial number specified")
	ErrUnresolvableHost = errors.New("unable to find MAAS server IP address")
)
