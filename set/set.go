// Package set provides a minimal insert-only set used for tracking unique
// names during saga construction.
package set

type Set[T comparable] struct {
	set map[T]struct{}
}

// New creates a Set preloaded with the given items.
func New[T comparable](items ...T) *Set[T] {
	s := &Set[T]{}
	for _, item := range items {
		s.Insert(item)
	}
	return s
}

func (s *Set[T]) Insert(k T) {
	if s.set == nil {
		s.set = make(map[T]struct{})
	}
	s.set[k] = struct{}{}
}

func (s *Set[T]) Contains(k T) bool {
	_, ok := s.set[k]
	return ok
}

func (s *Set[T]) Len() int {
	return len(s.set)
}
