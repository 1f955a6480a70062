package main

// JSON wire types for the CLI's three inputs (plan, policy bundle +
// contract set + curvature matrix, initial state) and its "run"/"verify"
// outputs. Grounded on the teacher's stdin/stdout Request/Response shape
// (clients/go/cmd/rubin-consensus-cli/main.go): flat JSON structs decoded
// once at the command boundary, never reflection-marshaled onto the
// authoritative path itself (canon.* owns that encoding).

type stateJSON struct {
	SchemaID string            `json:"schema_id"`
	Fields   map[string]string `json:"fields"` // field_id hex -> canonical atom string
}

type actionJSON struct {
	Type           string            `json:"type"`
	TargetBlocks   []int             `json:"target_blocks"`
	Payload        map[string]string `json:"payload"` // key -> canonical atom string; field_id hex keys are writes
	Budget         string            `json:"budget"`  // canonical quantum string
	DisturbanceTag string            `json:"disturbance_event,omitempty"`
}

type opJSON struct {
	OpID       string   `json:"op_id"`
	Block      int      `json:"block"`
	Reads      []string `json:"reads"`
	Writes     []string `json:"writes"`
	DeltaBound string   `json:"delta_bound"`
}

type edgeJSON struct {
	Pred string `json:"pred"`
	Succ string `json:"succ"`
	Kind string `json:"kind"`
}

type planJSON struct {
	PlanID             string                `json:"plan_id,omitempty"`
	PolicyBundleDigest string                `json:"policy_bundle_digest,omitempty"` // "h:<64 hex>"; omitted means "don't check"
	InitialStateHash   string                `json:"initial_state_hash,omitempty"`   // "h:<64 hex>"; omitted means "don't check"
	Ops                []opJSON              `json:"ops"`
	Actions            map[string]actionJSON `json:"actions"` // op_id -> its action descriptor
	Edges              []edgeJSON            `json:"edges"`
	MaxParallelWidth   int                   `json:"max_parallel_width"`
	SchedulerRuleID    string                `json:"scheduler_rule_id"`
}

type contractJSON struct {
	ResidualID          string            `json:"residual_id"`
	ResidualDim         int               `json:"residual_dim"`
	ResidualParams      map[string]string `json:"residual_params"`
	NormalizerID        string            `json:"normalizer_id"`
	NormalizerParams    map[string]string `json:"normalizer_params"`
	WeightNum           string            `json:"weight_num"`
	WeightDen           string            `json:"weight_den"`
	ApplicabilityID     string            `json:"applicability_id,omitempty"`
	ApplicabilityParams map[string]string `json:"applicability_params,omitempty"`
	Version             string           `json:"version"`
}

type contractSetJSON struct {
	Contracts []contractJSON `json:"contracts"`
}

type matrixEntryJSON struct {
	I   int    `json:"i"`
	J   int    `json:"j"`
	Num string `json:"num"`
	Den string `json:"den"`
}

type matrixJSON struct {
	ID           string            `json:"matrix_id"`
	Version      string            `json:"version"`
	EntryMode    string            `json:"entry_mode"`
	SymmetryMode string            `json:"symmetry_mode"`
	DomainMode   string            `json:"domain_mode"`
	BlockCount   int               `json:"block_count"`
	Entries      []matrixEntryJSON `json:"entries"`
}

type bundleJSON struct {
	ViolationPolicyID string            `json:"violation_policy_id"`
	ServiceLawKind    string            `json:"service_law_kind"`
	ServiceLawMu      string            `json:"service_law_mu"`
	DisturbanceClass  string            `json:"disturbance_class"`
	DisturbanceEbar   string            `json:"disturbance_ebar,omitempty"`
	DisturbanceBeta   map[string]string `json:"disturbance_beta,omitempty"`
	CurvatureMatrixID string            `json:"curvature_matrix_id"`
	SchedulerRuleID   string            `json:"scheduler_rule_id"`
	MaxParallelWidth  int               `json:"max_parallel_width"`
	MaxEpsilon        string            `json:"max_epsilon,omitempty"`
	MaxBigintBits     *int              `json:"max_bigint_bits,omitempty"`
	MaxFieldsTouched  *int              `json:"max_fields_touched_per_op,omitempty"`
	GenesisPrevHash   string            `json:"genesis_prev_hash,omitempty"` // "h:<64 hex>"; omitted means the all-zero genesis hash
}

// configJSON bundles the three chain-wide, genesis-frozen artifacts that
// every subcommand needs together: the policy bundle, the ordered contract
// set, and the curvature matrix. Kept as one file so a chain's full frozen
// configuration travels as a single unit, the way the teacher's genesis
// config is one file.
type configJSON struct {
	Policy   bundleJSON      `json:"policy"`
	Matrix   matrixJSON      `json:"curvature_matrix"`
	Contracts contractSetJSON `json:"contracts"`
}

type runOutputJSON struct {
	Ok         bool     `json:"ok"`
	Err        string   `json:"err,omitempty"`
	Commits    int      `json:"commits,omitempty"`
	HaltCode   string   `json:"halt_code,omitempty"`
	FinalState string   `json:"final_state_hash,omitempty"`
	ReceiptHex []string `json:"receipt_hashes,omitempty"`
}

type verifyOutputJSON struct {
	Ok            bool   `json:"ok"`
	Err           string `json:"err,omitempty"`
	FailingIndex  int    `json:"failing_index,omitempty"`
	FailedSubcheck string `json:"failed_subcheck,omitempty"`
	Detail        string `json:"detail,omitempty"`
}
