package compiler

// Closure returns the ids of the top-level nodes reachable from the entry
// node through references, dependencies first. It is empty when the file has
// no entry node.
func Closure(rf *ResolvedFlowFile) []string {
	reachable := reachableNodes(rf)
	if len(reachable) == 0 {
		return nil
	}
	var out []string
	for _, id := range rf.Order {
		if reachable[rf.Nodes[id]] {
			out = append(out, id)
		}
	}
	return out
}

// Unused returns the top-level ids that the entry node never reaches, in
// dependency order. Every node is unused in a file without an entry node.
func Unused(rf *ResolvedFlowFile) []string {
	if rf == nil {
		return nil
	}
	reachable := reachableNodes(rf)
	var out []string
	for _, id := range rf.Order {
		if !reachable[rf.Nodes[id]] {
			out = append(out, id)
		}
	}
	return out
}

// reachableNodes walks references from the entry node with a worklist.
func reachableNodes(rf *ResolvedFlowFile) map[*FlowNode]bool {
	if rf == nil || rf.Entry == nil {
		return nil
	}
	reachable := map[*FlowNode]bool{rf.Entry: true}
	worklist := []*FlowNode{rf.Entry}

	for len(worklist) > 0 {
		n := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		n.Walk(func(_ string, sub *FlowNode) {
			for _, item := range sub.Content {
				if item.Kind != ItemRef {
					continue
				}
				target := item.Ref.Resolved
				if target == nil {
					target = rf.Nodes[item.Ref.ID()]
				}
				if target != nil && !reachable[target] {
					reachable[target] = true
					worklist = append(worklist, target)
				}
			}
		})
	}
	return reachable
}
