package sysfs

import "errors"

var (
	// ErrUnreadable is returned when a control file cannot be opened, read
	// or parsed as a decimal integer.
	ErrUnreadable = errors.New("control file unreadable")

	// ErrZeroValue is returned when a control file reads as a literal zero.
	// Kernel drivers report zero for nodes they have not initialised, so a
	// zero is treated as "no usable value" rather than a real reading.
	ErrZeroValue = errors.New("control file reads zero")

	// ErrUnknownEndpoint is returned for endpoints with no configured path.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// Store reads and writes hardware control files by logical endpoint name.
type Store interface {
	ReadInt(ep Endpoint) (int, error)
	WriteInt(ep Endpoint, value int) error
	WriteString(ep Endpoint, value string) error
	Exists(ep Endpoint) bool
}
