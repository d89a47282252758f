package util

// Set holds distinct comparable values
type Set[K comparable] map[K]struct{}

// SetOf creates a set from the given values
func SetOf[K comparable](values ...K) Set[K] {
	s := make(Set[K], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts key and reports whether it was not already present
func (s Set[K]) Add(key K) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s Set[K]) Remove(key K) {
	delete(s, key)
}

func (s Set[K]) Contains(key K) bool {
	_, ok := s[key]
	return ok
}
