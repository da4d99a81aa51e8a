package diagnosis

// Store accumulates diagnoses for a single test run. It keeps both the
// latest diagnosis per result and the full ordered history. A Store is
// created fresh per execution and is only mutated by the diagnosis engine.
type Store struct {
	byResult map[Result]Diagnosis
	ordered  []Diagnosis
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byResult: make(map[Result]Diagnosis),
	}
}

// Add records a diagnosis, replacing the latest entry for its result.
func (s *Store) Add(d Diagnosis) {
	s.byResult[d.Result] = d
	s.ordered = append(s.ordered, d)
}

// Has reports whether any diagnosis with the given result has been recorded.
func (s *Store) Has(result Result) bool {
	_, ok := s.byResult[result]
	return ok
}

// Lookup returns the latest diagnosis for the given result.
func (s *Store) Lookup(result Result) (Diagnosis, bool) {
	d, ok := s.byResult[result]
	return d, ok
}

// All returns the ordered history of every recorded diagnosis.
func (s *Store) All() []Diagnosis {
	out := make([]Diagnosis, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// HasFailure reports whether any recorded diagnosis is a failure.
func (s *Store) HasFailure() bool {
	for _, d := range s.ordered {
		if d.IsFailure {
			return true
		}
	}
	return false
}

// Len returns the number of recorded diagnoses.
func (s *Store) Len() int {
	return len(s.ordered)
}
