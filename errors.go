package fat

import "errors"

// These errors may be returned by any filesystem operation. They are
// sentinels and can be tested with errors.Is; the concrete error values
// usually carry additional caller information added by the checkpoint
// package.
var (
	// ErrFormat means the boot sector failed validation or the volume
	// format is unsupported (FAT12). The mount state is left unchanged.
	ErrFormat = errors.New("unsupported or invalid filesystem format")

	// ErrDevice means a block read or write on the underlying device
	// failed. The sector buffer must not be assumed valid afterwards.
	ErrDevice = errors.New("block device access failed")

	// ErrNotMounted is returned by operations that need a mounted volume.
	ErrNotMounted = errors.New("no volume mounted")

	// ErrNotFound means a path component does not exist and creation was
	// not requested.
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotAFile means the resolved entry is a directory or volume label.
	ErrNotAFile = errors.New("not a regular file")

	// ErrNotADirectory means directory iteration was requested on a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrPermission means the requested open flags conflict with the
	// entry's attributes, for example writing a read-only file.
	ErrPermission = errors.New("permission denied")

	// ErrPoolExhausted means no free file descriptor slot was available.
	ErrPoolExhausted = errors.New("file descriptor pool exhausted")

	// ErrInvalidName means a path component does not form a valid 8.3 name.
	ErrInvalidName = errors.New("invalid 8.3 file name")

	// ErrBadDescriptor means the descriptor is out of range or closed.
	ErrBadDescriptor = errors.New("bad file descriptor")

	// ErrReadOnlyDevice means a write was attempted on a device that only
	// supports reads.
	ErrReadOnlyDevice = errors.New("device is read-only")

	// ErrVolumeFull means the free-cluster scan exhausted the FAT without
	// finding a zero entry.
	ErrVolumeFull = errors.New("no free cluster on volume")
)

// errEndOfChain marks the terminal entry of a cluster chain during a walk.
// It distinguishes "stop, nothing more" from a hard device error and never
// escapes the public API.
var errEndOfChain = errors.New("end of cluster chain")
