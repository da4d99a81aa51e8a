package measure

import "fmt"

// DimensionedValue is one recorded coordinate/value pair of a dimensioned
// measurement.
type DimensionedValue struct {
	Coordinates []interface{} `json:"coordinates"`
	Value       interface{}   `json:"value"`
}

// dimStorage stores dimensioned values in insertion order while allowing a
// re-set of identical coordinates to replace the earlier value in place.
type dimStorage struct {
	index  map[string]int
	stored []DimensionedValue
}

func newDimStorage() *dimStorage {
	return &dimStorage{index: make(map[string]int)}
}

func coordinateKey(coordinates []interface{}) string {
	return fmt.Sprintf("%v", coordinates)
}

func (s *dimStorage) set(coordinates []interface{}, value interface{}) {
	key := coordinateKey(coordinates)
	coords := append([]interface{}(nil), coordinates...)
	if i, ok := s.index[key]; ok {
		s.stored[i] = DimensionedValue{Coordinates: coords, Value: value}
		return
	}
	s.index[key] = len(s.stored)
	s.stored = append(s.stored, DimensionedValue{Coordinates: coords, Value: value})
}

func (s *dimStorage) values() []DimensionedValue {
	out := make([]DimensionedValue, len(s.stored))
	copy(out, s.stored)
	return out
}

func (s *dimStorage) len() int {
	return len(s.stored)
}
