package qspruntime

import (
	"io"

	"github.com/wippyai/qsp-runtime/state"
)

// Access is the permission a resolved handle must grant.
type Access int

const (
	AccessRead Access = iota + 1
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Storage resolves game-relative paths to handles and performs all byte I/O
// on them. The runtime never touches files directly.
type Storage interface {
	// Resolve returns a handle for path under dir with the requested access.
	// For AccessWrite the file may not exist yet; Create makes it. mimeType
	// may be empty.
	Resolve(dir state.Handle, path string, access Access, mimeType string) (state.Handle, error)
	// Readable reports whether h names an existing readable file.
	Readable(h state.Handle) bool
	Open(h state.Handle) (io.ReadCloser, error)
	Create(h state.Handle) (io.WriteCloser, error)
}

// AudioPlayer plays sound files by handle. Volume is a percentage 0-100.
type AudioPlayer interface {
	Play(h state.Handle, volume int) error
	Stop(h state.Handle)
	StopAll()
	IsPlaying(h state.Handle) bool
}
