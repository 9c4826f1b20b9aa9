package storagegroup

import "github.com/pkg/errors"

// ErrorKind classifies the sentinel errors a Processor can return, so
// callers can branch on failure category without string matching.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindOutOfTTL
	KindDiskSpaceInsufficient
	KindLoadFile
	KindMerge
	KindBufferClose
	KindWrite
	KindMetadata
)

var (
	// ErrOutOfTTL is returned when an insert's timestamp is older than
	// the storage group's TTL cutoff.
	ErrOutOfTTL = errors.New("insertion time point is out of TTL")

	// ErrDiskSpaceInsufficient is returned when a data root falls below
	// its configured free-space floor.
	ErrDiskSpaceInsufficient = errors.New("unable to create new file: disk space insufficient")

	// ErrLoadFile covers any failure while loading an external file into
	// this storage group (collision, overlap, unreadable resource).
	ErrLoadFile = errors.New("load file failed")

	// ErrMerge covers any failure during a merge task.
	ErrMerge = errors.New("merge failed")

	// ErrBufferClose covers any failure while sealing a writable buffer.
	ErrBufferClose = errors.New("buffer close failed")

	// ErrWrite covers any failure while writing a row into a buffer.
	ErrWrite = errors.New("write failed")

	// ErrMetadata covers any failure from the metadata collaborator.
	ErrMetadata = errors.New("metadata operation failed")

	// ErrNotFound names a file that is not present in the FileIndex.
	// DeleteFile and MoveFile report that case as (false, nil) and do
	// not return it.
	ErrNotFound = errors.New("file not found")

	// ErrClosed is returned by Insert (and so by InsertBatch) once
	// Close/Teardown has been called; other operations do not check it.
	ErrClosed = errors.New("storage group processor is closed")
)

// Kind maps an error produced by this package back to its ErrorKind,
// unwrapping pkg/errors-wrapped causes along the way.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrOutOfTTL):
		return KindOutOfTTL
	case errors.Is(err, ErrDiskSpaceInsufficient):
		return KindDiskSpaceInsufficient
	case errors.Is(err, ErrLoadFile):
		return KindLoadFile
	case errors.Is(err, ErrMerge):
		return KindMerge
	case errors.Is(err, ErrBufferClose):
		return KindBufferClose
	case errors.Is(err, ErrWrite):
		return KindWrite
	case errors.Is(err, ErrMetadata):
		return KindMetadata
	default:
		return KindUnknown
	}
}
