package dag

// Tracker maintains per-op in-degree and successor lists, and is mutable
// only via MarkCommitted and ResetToReady (spec §3 Dependency tracker,
// §4.7).
type Tracker struct {
	successors map[string][]string // op_id -> successor op_ids, in canonical order
	inDegree   map[string]int
	allOps     []string // canonical order
}

// NewTracker builds a tracker from an execution plan's ops and edges.
func NewTracker(opIDs []string, edges []Edge) *Tracker {
	t := &Tracker{
		successors: make(map[string][]string, len(opIDs)),
		inDegree:   make(map[string]int, len(opIDs)),
	}
	t.allOps = append(t.allOps, opIDs...)
	SortOpIDs(t.allOps)
	for _, id := range t.allOps {
		t.inDegree[id] = 0
	}
	for _, e := range edges {
		t.inDegree[e.Succ]++
	}
	// Successor lists must themselves be in canonical op_id order so that
	// "decrement successors in the order they appear in the sorted
	// successor list" (spec §4.7) is well defined.
	bySucc := make(map[string][]string)
	for _, e := range edges {
		bySucc[e.Pred] = append(bySucc[e.Pred], e.Succ)
	}
	for pred, succs := range bySucc {
		SortOpIDs(succs)
		t.successors[pred] = succs
	}
	return t
}

// InDegree returns the current in-degree of op.
func (t *Tracker) InDegree(op string) int { return t.inDegree[op] }

// ReadySet returns ops with in-degree zero that are not in committed, in
// canonical order (spec §4.7).
func (t *Tracker) ReadySet(committed map[string]bool) []string {
	out := make([]string, 0, len(t.allOps))
	for _, id := range t.allOps {
		if t.inDegree[id] == 0 && !committed[id] {
			out = append(out, id)
		}
	}
	return out // t.allOps is already canonically sorted
}

// MarkCommitted decrements the in-degree of every successor of op, in the
// order the successor list is stored (already canonical).
func (t *Tracker) MarkCommitted(op string) {
	for _, succ := range t.successors[op] {
		t.inDegree[succ]--
	}
}

// ResetToReady sets the in-degree of each given op back to zero, used when
// split-lexmin returns peeled ops to the ready set (spec §4.7, §4.10).
func (t *Tracker) ResetToReady(ops []string) {
	for _, op := range ops {
		t.inDegree[op] = 0
	}
}
