package phase

import "teststand/internal/diagnosis"

// Branch executes its sequence only if a diagnosis condition holds at the
// moment the branch is reached. Whether it was taken is always recorded.
type Branch struct {
	BranchName string
	Condition  diagnosis.Condition
	Nodes      *Sequence
}

// NewBranch builds a conditional branch over the given nodes.
func NewBranch(name string, cond diagnosis.Condition, nodes ...Node) *Branch {
	return &Branch{BranchName: name, Condition: cond, Nodes: NewSequence(nodes...)}
}

// BranchOnAll runs the nodes when every result is present.
func BranchOnAll(name string, results []diagnosis.Result, nodes ...Node) *Branch {
	return NewBranch(name, diagnosis.OnAll(results...), nodes...)
}

// BranchOnAny runs the nodes when at least one result is present.
func BranchOnAny(name string, results []diagnosis.Result, nodes ...Node) *Branch {
	return NewBranch(name, diagnosis.OnAny(results...), nodes...)
}

func (b *Branch) Name() string {
	if b.BranchName != "" {
		return b.BranchName
	}
	return "branch:" + b.Condition.String()
}

func (b *Branch) Walk(fn func(Node)) {
	fn(b)
	if b.Nodes != nil {
		b.Nodes.Walk(fn)
	}
}
