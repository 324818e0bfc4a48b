package xact

import (
	"github.com/relcore/dbcore/internal/invalq"
)

// Process owns the one genuinely shared object in this design: the
// process-wide invalidation queue (spec §9). It outlives every Worker that
// registers a Consumer against it.
type Process struct {
	Invalidation *invalq.Queue
}

// NewProcess creates a Process with a fresh invalidation queue.
func NewProcess() *Process {
	return &Process{Invalidation: invalq.New("")}
}
