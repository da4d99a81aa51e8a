package phase

// Node is one element of the phase tree. The variant set is closed: the
// executor dispatches over Descriptor, Sequence, Group, Subtest, Branch, and
// Checkpoint, and nothing else.
type Node interface {
	// Name returns the node's display name.
	Name() string
	// Walk visits the node and then its children, depth-first.
	Walk(fn func(Node))
}

// Sequence runs its children in declaration order.
type Sequence struct {
	SeqName string
	Nodes   []Node
}

// NewSequence groups nodes into an ordered sequence.
func NewSequence(nodes ...Node) *Sequence {
	return &Sequence{Nodes: nodes}
}

// NamedSequence groups nodes under a display name.
func NamedSequence(name string, nodes ...Node) *Sequence {
	return &Sequence{SeqName: name, Nodes: nodes}
}

func (s *Sequence) Name() string {
	if s.SeqName != "" {
		return s.SeqName
	}
	return "sequence"
}

func (s *Sequence) Walk(fn func(Node)) {
	fn(s)
	for _, n := range s.Nodes {
		n.Walk(fn)
	}
}

// Append returns a copy of the sequence with extra nodes at the end.
func (s *Sequence) Append(nodes ...Node) *Sequence {
	out := &Sequence{SeqName: s.SeqName}
	out.Nodes = append(append([]Node(nil), s.Nodes...), nodes...)
	return out
}
