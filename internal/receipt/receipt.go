// Package receipt implements the local and commit receipt structures of
// spec §3, §4.6 step 9 and §4.9 step 7/8: the per-op evidence trail that
// feeds the Merkle aggregation of a commit receipt, and the chain-level
// commit receipt that a ledger stores and a replay verifier re-derives.
// Grounded on the teacher's BlockHeader/BlockIndexEntry pair
// (consensus/block.go, node/store/db.go): a per-transaction evidence record
// aggregated into a per-block header with a previous-hash link.
package receipt

import (
	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

// Local is the evidence trail for one op within a batch (spec §3 Local
// receipt, §4.6 step 9).
type Local struct {
	OpID         string
	PreStateHash canon.Hash32
	PostStateHash canon.Hash32 // single-op patched state, spec §4.6 step 4
	D, DPrime    quantum.Q
	Service      quantum.Q
	Disturbance  quantum.Q
}

// Canonical renders the local receipt's canonical bytes with a fixed field
// order (spec §3).
func (l Local) Canonical() []byte {
	out := "{" +
		`"op_id":` + quoteString(l.OpID) + "," +
		`"pre_state_hash":` + quoteString(l.PreStateHash.Hex()) + "," +
		`"post_state_hash":` + quoteString(l.PostStateHash.Hex()) + "," +
		`"d":` + quoteString(l.D.Canonical()) + "," +
		`"d_prime":` + quoteString(l.DPrime.Canonical()) + "," +
		`"service":` + quoteString(l.Service.Canonical()) + "," +
		`"disturbance":` + quoteString(l.Disturbance.Canonical()) +
		"}"
	return []byte(out)
}

// Hash is the local receipt's identity hash: the Merkle leaf contributed by
// this op (spec §4.9 step 7).
func (l Local) Hash() canon.Hash32 { return canon.SHA3(l.Canonical()) }

// Commit is the chain-level receipt for one accepted batch (spec §3 Commit
// receipt, §4.9 step 8). PrevHash is the all-zero hash for the genesis
// commit and the previous commit's Hash otherwise (spec §4.10 Chain laws).
type Commit struct {
	Index          int
	PrevHash       canon.Hash32
	BatchOpIDs     []string // canonical op_id order, the Merkle leaf order
	MerkleRoot     canon.Hash32
	PreStateHash   canon.Hash32 // shared batch pre-state
	PostStateHash  canon.Hash32 // batch-patched post-state
	VPre, VPost    quantum.Q
	Epsilon        quantum.Q // |VPost - VPre|, spec §4.9 step 5
	EpsilonHat     quantum.Q // curvature-bounded cost estimate, spec §4.4
	PolicyDigest   canon.Hash32

	// Policy-locked identifiers bound into every commit so that a replay can
	// detect mid-chain drift in any one of them without needing the full
	// bundle (spec §3 Commit receipt field list).
	SchedulerRuleID       string
	SchedulerMode         string
	PolicyBundleID        string
	CurvatureMatrixID     string
	CurvatureMatrixDigest canon.Hash32
}

// Canonical renders the commit receipt's canonical bytes with a fixed field
// order (spec §3).
func (c Commit) Canonical() []byte {
	ids := make([]string, len(c.BatchOpIDs))
	copy(ids, c.BatchOpIDs)
	opVals := make([]string, len(ids))
	for i, id := range ids {
		opVals[i] = quoteString(id)
	}
	opsJSON := "[" + joinComma(opVals) + "]"

	out := "{" +
		`"index":` + itoa(c.Index) + "," +
		`"prev_hash":` + quoteString(c.PrevHash.Hex()) + "," +
		`"batch_op_ids":` + opsJSON + "," +
		`"merkle_root":` + quoteString(c.MerkleRoot.Hex()) + "," +
		`"pre_state_hash":` + quoteString(c.PreStateHash.Hex()) + "," +
		`"post_state_hash":` + quoteString(c.PostStateHash.Hex()) + "," +
		`"v_pre":` + quoteString(c.VPre.Canonical()) + "," +
		`"v_post":` + quoteString(c.VPost.Canonical()) + "," +
		`"epsilon":` + quoteString(c.Epsilon.Canonical()) + "," +
		`"epsilon_hat":` + quoteString(c.EpsilonHat.Canonical()) + "," +
		`"policy_digest":` + quoteString(c.PolicyDigest.Hex()) + "," +
		`"scheduler_rule_id":` + quoteString(c.SchedulerRuleID) + "," +
		`"scheduler_mode":` + quoteString(c.SchedulerMode) + "," +
		`"policy_bundle_id":` + quoteString(c.PolicyBundleID) + "," +
		`"curvature_matrix_id":` + quoteString(c.CurvatureMatrixID) + "," +
		`"curvature_matrix_digest":` + quoteString(c.CurvatureMatrixDigest.Hex()) +
		"}"
	return []byte(out)
}

// Hash is the commit receipt's identity hash, and becomes the next commit's
// PrevHash (spec §4.10 Chain laws).
func (c Commit) Hash() canon.Hash32 { return canon.SHA3(c.Canonical()) }

func quoteString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for _, b := range []byte(s) {
		if b == '"' || b == '\\' {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	out = append(out, '"')
	return string(out)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
