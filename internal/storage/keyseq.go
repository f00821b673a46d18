package storage

import (
	"iter"
	"sync/atomic"
)

// KeySeq is a lazy, finite, single-use sequence of stored keys.
//
// Keys are produced while the caller ranges over All. Iteration cannot be
// restarted: a second call to All yields nothing and Err reports
// ErrSequenceConsumed.
//
//	seq := backend.AssetKeys(ctx)
//	for key := range seq.All() {
//		...
//	}
//	if err := seq.Err(); err != nil {
//		...
//	}
type KeySeq struct {
	walk func(yield func(string) bool) error
	used atomic.Bool
	err  error
}

// NewKeySeq creates a sequence backed by walk. walk must stop as soon as
// yield returns false and return any error that ended the walk early.
func NewKeySeq(walk func(yield func(string) bool) error) *KeySeq {
	return &KeySeq{walk: walk}
}

// FailedKeySeq returns a sequence that yields nothing and reports err.
func FailedKeySeq(err error) *KeySeq {
	return &KeySeq{walk: func(func(string) bool) error { return err }}
}

// All returns the iterator over the keys.
func (s *KeySeq) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.used.CompareAndSwap(false, true) {
			s.err = ErrSequenceConsumed
			return
		}
		s.err = s.walk(yield)
	}
}

// Err returns the error that ended iteration, if any.
func (s *KeySeq) Err() error {
	return s.err
}

// Collect drains the sequence into a slice.
func (s *KeySeq) Collect() ([]string, error) {
	var keys []string
	for k := range s.All() {
		keys = append(keys, k)
	}
	return keys, s.Err()
}
