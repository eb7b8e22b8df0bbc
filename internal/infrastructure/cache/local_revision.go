package cache

import (
	"context"
	"strconv"
	"sync/atomic"
)

// LocalRevision is an in-process grant revision for single-instance deployments.
type LocalRevision struct {
	n atomic.Uint64
}

// NewLocalRevision creates a LocalRevision starting at zero
func NewLocalRevision() *LocalRevision {
	return &LocalRevision{}
}

// CurrentRevision returns the current revision
func (r *LocalRevision) CurrentRevision(ctx context.Context) (string, error) {
	return strconv.FormatUint(r.n.Load(), 10), nil
}

// Invalidate advances the revision
func (r *LocalRevision) Invalidate(ctx context.Context) error {
	r.n.Add(1)
	return nil
}
