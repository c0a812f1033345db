package pe

import (
	"time"

	"go.uber.org/zap"
)

type Option func(*Builder)

func WithImageBase(base uint32) Option {
	return func(b *Builder) {
		b.imageBase = base
	}
}

func WithStack(reserve, commit uint32) Option {
	return func(b *Builder) {
		b.stackReserve = reserve
		b.stackCommit = commit
	}
}

func WithHeap(reserve, commit uint32) Option {
	return func(b *Builder) {
		b.heapReserve = reserve
		b.heapCommit = commit
	}
}

// WithEntryPoint overrides the entry point RVA. Without it the image starts
// executing at DefaultEntryPoint whatever the code section's address.
func WithEntryPoint(rva uint32) Option {
	return func(b *Builder) {
		b.entryPoint = rva
	}
}

func WithSubsystem(subsystem uint16) Option {
	return func(b *Builder) {
		b.subsystem = subsystem
	}
}

// WithClock sets the source of the file header timestamp.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}
