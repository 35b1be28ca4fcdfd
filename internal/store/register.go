package store

import (
	"sync"

	"github.com/Atharv714/Safe-Passage/internal/value"
)

// SampleRegister keeps the most recent continuous sensor sample.
type SampleRegister struct {
	mu     sync.RWMutex
	sample value.Value
	set    bool
}

// NewSampleRegister returns an empty register.
func NewSampleRegister() *SampleRegister {
	return &SampleRegister{}
}

// Set replaces the stored sample.
func (r *SampleRegister) Set(sample value.Value) {
	r.mu.Lock()
	r.sample = sample
	r.set = true
	r.mu.Unlock()
}

// Get returns the stored sample; ok is false until the first Set.
func (r *SampleRegister) Get() (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sample, r.set
}
