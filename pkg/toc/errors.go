package toc

import "github.com/pkg/errors"

var (
	// ErrNotStreamToc reports that a blob is empty or does not carry the
	// stream TOC magic. Callers probing unknown files treat it as "skip".
	ErrNotStreamToc = errors.New("not a stream toc")

	// ErrDuplicateEntry is returned by AddEntry when (type, file) is taken
	// and override was not requested.
	ErrDuplicateEntry = errors.New("entry with same id already exists")

	// ErrTruncated reports that the entry table or a payload runs past the
	// end of its blob.
	ErrTruncated = errors.New("truncated container")
)
