package canon

import (
	"fmt"
	"sort"

	"coherence.dev/gate/internal/quantum"
)

// ActionType is one of the closed set of declared action kinds (spec §3).
type ActionType string

const (
	ActionStateUpdate       ActionType = "state_update"
	ActionContractActivate  ActionType = "contract_activate"
	ActionContractDeactivate ActionType = "contract_deactivate"
	ActionParameterUpdate   ActionType = "parameter_update"
	ActionBoundaryEnforce   ActionType = "boundary_enforce"
)

var validActionTypes = map[ActionType]bool{
	ActionStateUpdate: true, ActionContractActivate: true, ActionContractDeactivate: true,
	ActionParameterUpdate: true, ActionBoundaryEnforce: true,
}

// Action is the action descriptor of spec §3: a declared type, sorted
// unique target blocks, a structured payload of tagged atoms with sorted
// keys, a declared budget, an optional disturbance event label, and the
// policy bundle digest it claims.
type Action struct {
	Type           ActionType
	TargetBlocks   []int
	Payload        map[string]Atom
	Budget         quantum.Q
	DisturbanceTag string // optional; empty means absent
	PolicyDigest   Hash32
}

// Canonicalize validates and normalizes an action per spec §4.6 step 1:
// reject unknown action types, sort and de-duplicate target blocks
// (duplicates are removed, not rejected), and reject an empty target block
// list or a negative block.
func (a Action) Canonicalize() (Action, error) {
	if !validActionTypes[a.Type] {
		return Action{}, fmt.Errorf("canon: unknown action type %q", a.Type)
	}
	blocks := append([]int(nil), a.TargetBlocks...)
	sort.Ints(blocks)
	deduped := blocks[:0]
	for i, b := range blocks {
		if i == 0 || b != blocks[i-1] {
			deduped = append(deduped, b)
		}
	}
	if len(deduped) == 0 {
		return Action{}, fmt.Errorf("canon: action must target at least one block")
	}
	for _, b := range deduped {
		if b < 0 {
			return Action{}, fmt.Errorf("canon: negative target block %d", b)
		}
	}
	out := a
	out.TargetBlocks = deduped
	return out, nil
}

// Canonical renders the action's canonical bytes.
func (a Action) Canonical() []byte {
	blockVals := make([]string, len(a.TargetBlocks))
	for i, b := range a.TargetBlocks {
		blockVals[i] = intVal(b)
	}

	keys := make([]string, 0, len(a.Payload))
	for k := range a.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payloadPairs := make([]string, 0, len(keys))
	for _, k := range keys {
		payloadPairs = append(payloadPairs, arr(strVal(k), strVal(a.Payload[k].Canonical())))
	}

	dist := a.DisturbanceTag
	out := object(
		field{"action_type", strVal(string(a.Type))},
		field{"target_blocks", arr(blockVals...)},
		field{"payload", arr(payloadPairs...)},
		field{"budget", strVal(a.Budget.Canonical())},
		field{"disturbance_event", strVal(dist)},
		field{"policy_digest", strVal(a.PolicyDigest.Hex())},
	)
	return []byte(out)
}

// Hash returns the SHA3-256 action hash of the action's canonical bytes.
func (a Action) Hash() Hash32 { return SHA3(a.Canonical()) }
