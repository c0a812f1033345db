package pe

import "github.com/pkg/errors"

var (
	ErrNoCode           = errors.New("no code specified")
	ErrDuplicateSection = errors.New("section already added")
	ErrAlreadyWritten   = errors.New("image already written, builder is single-use")
)

var (
	ErrInvalidImport      = errors.New("invalid import specification")
	ErrSectionOverlap     = errors.New("section address ranges overlap")
	// ErrSectionNameTooLong guards the 8-byte header name field. The
	// builder's own section names always fit.
	ErrSectionNameTooLong = errors.New("section name longer than 8 bytes")
	ErrImageTooSmall      = errors.New("image smaller than its headers")
)
