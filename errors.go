package flashkv

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when no live object matches the key.
	ErrKeyNotFound = errors.New("flashkv: key not found")

	// ErrKeyAlreadyExists is returned by Append when a live object with
	// the same hashed key is already stored.
	ErrKeyAlreadyExists = errors.New("flashkv: key already exists")

	// ErrObjectTooLarge is returned when header+payload+checksum would
	// not fit in the 12-bit object length field.
	ErrObjectTooLarge = errors.New("flashkv: object too large")

	// ErrStoreFull is returned when every region in the probe chain has
	// been tried and none has room.
	ErrStoreFull = errors.New("flashkv: store full")

	// ErrUnsupportedVersion is returned when an on-flash object carries
	// a version byte this implementation does not understand.
	ErrUnsupportedVersion = errors.New("flashkv: unsupported object version")

	// ErrCorruptData is returned when a header is structurally
	// inconsistent, or a slot that should be empty holds stray bytes.
	ErrCorruptData = errors.New("flashkv: corrupt data")

	// ErrInvalidChecksum is returned when a stored object's checksum
	// does not match the recomputed one.
	ErrInvalidChecksum = errors.New("flashkv: invalid checksum")

	// ErrOperationPending is returned when a new operation is started
	// while a previous one is suspended awaiting storage.
	ErrOperationPending = errors.New("flashkv: operation pending")

	// ErrNoPendingOperation is returned by Continue when nothing is
	// suspended.
	ErrNoPendingOperation = errors.New("flashkv: no pending operation")
)

// BufferTooSmallError is returned by Get when the destination buffer
// cannot hold the stored value. Required is the value length.
type BufferTooSmallError struct {
	Required int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("flashkv: buffer too small, need %d bytes", e.Required)
}

// ReadNotReadyError reports that a region read was started
// asynchronously and has not completed yet. The operation must be
// continued once the read finishes.
type ReadNotReadyError struct {
	Region int
}

func (e *ReadNotReadyError) Error() string {
	return fmt.Sprintf("flashkv: read of region %d not ready", e.Region)
}

// EraseNotReadyError reports that a region erase was started
// asynchronously and has not completed yet.
type EraseNotReadyError struct {
	Region int
}

func (e *EraseNotReadyError) Error() string {
	return fmt.Sprintf("flashkv: erase of region %d not ready", e.Region)
}

// WriteNotReadyError reports an asynchronous write. The engine requires
// synchronous writes (see Flash); the type exists so drivers that queue
// writes can still signal it.
type WriteNotReadyError struct {
	Region int
}

func (e *WriteNotReadyError) Error() string {
	return fmt.Sprintf("flashkv: write to region %d not ready", e.Region)
}

// NotReady reports whether err is a resumable not-ready status rather
// than a terminal error.
func NotReady(err error) bool {
	var r *ReadNotReadyError
	var w *WriteNotReadyError
	var e *EraseNotReadyError
	return errors.As(err, &r) || errors.As(err, &w) || errors.As(err, &e)
}
