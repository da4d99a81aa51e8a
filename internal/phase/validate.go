package phase

import (
	"fmt"

	"teststand/internal/diagnosis"
)

// CheckSubtestNames verifies that subtest names are unique within the tree.
func CheckSubtestNames(root Node) error {
	seen := make(map[string]bool)
	var dup error
	root.Walk(func(n Node) {
		s, ok := n.(*Subtest)
		if !ok || dup != nil {
			return
		}
		if seen[s.SubtestName] {
			dup = fmt.Errorf("%w: %q", ErrDuplicateSubtestName, s.SubtestName)
			return
		}
		seen[s.SubtestName] = true
	})
	return dup
}

// CheckCheckpointPlacement verifies that FAIL_SUBTEST checkpoints only appear
// inside subtests. Walk cannot carry nesting depth, so this recurses with an
// explicit in-subtest flag.
func CheckCheckpointPlacement(root Node) error {
	return checkCheckpoints(root, false)
}

func checkCheckpoints(n Node, inSubtest bool) error {
	switch v := n.(type) {
	case *Checkpoint:
		if v.Action == ResultFailSubtest && !inSubtest {
			return fmt.Errorf("%w: %q", ErrCheckpointOutsideSubtest, v.CheckpointName)
		}
	case *Subtest:
		if v.Nodes != nil {
			return checkCheckpoints(v.Nodes, true)
		}
	case *Sequence:
		for _, child := range v.Nodes {
			if err := checkCheckpoints(child, inSubtest); err != nil {
				return err
			}
		}
	case *Group:
		for _, s := range []*Sequence{v.Setup, v.Main, v.Teardown} {
			if s == nil {
				continue
			}
			if err := checkCheckpoints(s, inSubtest); err != nil {
				return err
			}
		}
	case *Branch:
		if v.Nodes != nil {
			return checkCheckpoints(v.Nodes, inSubtest)
		}
	}
	return nil
}

// CollectDiagnosers walks the tree and gathers every phase diagnoser, in
// declaration order, for the pre-run duplicate-result check.
func CollectDiagnosers(root Node) []diagnosis.PhaseDiagnoser {
	var out []diagnosis.PhaseDiagnoser
	root.Walk(func(n Node) {
		if d, ok := n.(*Descriptor); ok {
			out = append(out, d.diagnosers...)
		}
	})
	return out
}
