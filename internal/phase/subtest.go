package phase

// Subtest wraps a sequence with localized fail semantics: a FAIL_SUBTEST
// result fails the subtest but sibling phases within it are skipped
// individually instead of hard-aborted. Subtest names must be unique within
// one tree.
type Subtest struct {
	SubtestName string
	Nodes       *Sequence
}

// NewSubtest builds a named subtest over the given nodes.
func NewSubtest(name string, nodes ...Node) *Subtest {
	return &Subtest{SubtestName: name, Nodes: NewSequence(nodes...)}
}

func (s *Subtest) Name() string {
	return s.SubtestName
}

func (s *Subtest) Walk(fn func(Node)) {
	fn(s)
	if s.Nodes != nil {
		s.Nodes.Walk(fn)
	}
}
