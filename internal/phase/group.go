package phase

// Group bundles setup, main, and teardown sequences. Teardown runs if and
// only if setup completed without a terminal result; the executor tracks
// "entered" explicitly.
type Group struct {
	GroupName string
	Setup     *Sequence
	Main      *Sequence
	Teardown  *Sequence
}

// NewGroup builds a group with all three sections. Nil sections are allowed
// and treated as empty.
func NewGroup(name string, setup, main, teardown *Sequence) *Group {
	return &Group{GroupName: name, Setup: setup, Main: main, Teardown: teardown}
}

// GroupOf wraps main-only nodes in a group with no setup or teardown.
func GroupOf(name string, nodes ...Node) *Group {
	return &Group{GroupName: name, Main: NewSequence(nodes...)}
}

func (g *Group) Name() string {
	if g.GroupName != "" {
		return g.GroupName
	}
	return "group"
}

func (g *Group) Walk(fn func(Node)) {
	fn(g)
	for _, s := range []*Sequence{g.Setup, g.Main, g.Teardown} {
		if s != nil {
			s.Walk(fn)
		}
	}
}
