// Command gate-cli drives a deterministic commit chain from flat JSON
// inputs: plan, run, and verify. Grounded on the teacher's two CLI
// shapes — clients/go/cmd/rubin-node/main.go's testable
// run(args, stdout, stderr) int entrypoint with flag.NewFlagSet, and
// clients/go/cmd/rubin-consensus-cli/main.go's JSON-in/JSON-out harness that
// independently recomputes rather than trusting its input.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/curvature"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/gate"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/ledger"
	"coherence.dev/gate/internal/logging"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/replay"
	"coherence.dev/gate/internal/scheduler"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: gate-cli <plan|run|verify> [flags]")
		return 2
	}
	switch args[0] {
	case "plan":
		return runPlanCmd(args[1:], stdout, stderr)
	case "run":
		return runRunCmd(args[1:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "gate-cli: unknown subcommand %q\n", args[0])
		return 2
	}
}

// world is every decoded, wired artifact a subcommand needs to act.
type world struct {
	plan      dag.ExecutionPlan
	actions   map[string]canon.Action
	kernels   *kernel.Registry
	contracts contract.Set
	matrix    curvature.Matrix
	bundle    policy.Bundle
	initial   canon.State
}

func loadWorld(configPath, planPath, initialPath string) (world, error) {
	var cfg configJSON
	if err := readJSON(configPath, &cfg); err != nil {
		return world{}, fmt.Errorf("config: %w", err)
	}
	matrix, err := decodeMatrix(cfg.Matrix)
	if err != nil {
		return world{}, fmt.Errorf("curvature_matrix: %w", err)
	}
	contracts, err := decodeContractSet(cfg.Contracts)
	if err != nil {
		return world{}, fmt.Errorf("contracts: %w", err)
	}

	var pj planJSON
	if err := readJSON(planPath, &pj); err != nil {
		return world{}, fmt.Errorf("plan: %w", err)
	}
	plan, actions, err := decodePlan(pj)
	if err != nil {
		return world{}, fmt.Errorf("plan: %w", err)
	}

	kernels, err := buildKernels(plan.Ops, actions)
	if err != nil {
		return world{}, fmt.Errorf("kernels: %w", err)
	}
	for i := range plan.Ops {
		e, err := kernels.Lookup(plan.Ops[i].KernelID)
		if err != nil {
			return world{}, err
		}
		plan.Ops[i].KernelHash = e.Hash()
	}

	var genesisPrevHash canon.Hash32
	if cfg.Policy.GenesisPrevHash != "" {
		genesisPrevHash, err = canon.ParseHash32(cfg.Policy.GenesisPrevHash)
		if err != nil {
			return world{}, fmt.Errorf("genesis_prev_hash: %w", err)
		}
	}
	bundle, err := decodeBundle(cfg.Policy, matrix.Hash(), kernels.Digest(), genesisPrevHash)
	if err != nil {
		return world{}, fmt.Errorf("policy: %w", err)
	}

	var sj stateJSON
	if err := readJSON(initialPath, &sj); err != nil {
		return world{}, fmt.Errorf("initial state: %w", err)
	}
	initial, err := decodeState(sj)
	if err != nil {
		return world{}, fmt.Errorf("initial state: %w", err)
	}

	return world{
		plan: plan, actions: actions, kernels: kernels, contracts: contracts,
		matrix: matrix, bundle: bundle, initial: initial,
	}, nil
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// buildKernels registers one kernel per op, each a closure over that op's
// own declared action payload. Kernel bodies are Go closures, not data, so
// a JSON plan cannot carry arbitrary kernel logic; this CLI's built-in
// kernel family is a small declarative "write these fields" function,
// applying payload entries whose keys parse as field ids, then restricted
// (by kernel.Registry.Run) to the op's declared write set.
func buildKernels(ops []dag.OpSpec, actions map[string]canon.Action) (*kernel.Registry, error) {
	reg := kernel.NewRegistry()
	paramsDigest := canon.SHA3([]byte("state_update.v1"))
	registered := map[string]bool{}
	for _, o := range ops {
		if registered[o.KernelID] {
			continue
		}
		registered[o.KernelID] = true
		action, ok := actions[o.OpID]
		if !ok {
			return nil, fmt.Errorf("gate-cli: op %q has no action descriptor", o.OpID)
		}
		payload := action.Payload
		body := func(pre canon.State) (canon.State, error) {
			patch := make(map[canon.FieldID]canon.Atom, len(payload))
			for key, atom := range payload {
				id, err := canon.ParseFieldID(key)
				if err != nil {
					continue // non-field payload entries (e.g. "disturbance_amount") are not writes
				}
				patch[id] = atom
			}
			return pre.Patch(patch), nil
		}
		if err := reg.Register(kernel.Entry{ID: o.KernelID, Body: body, ParamsSchemaDigest: paramsDigest}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func runPlanCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	planPath := fs.String("plan", "", "path to plan JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *planPath == "" {
		fmt.Fprintln(stderr, "gate-cli plan: -plan is required")
		return 2
	}
	var pj planJSON
	if err := readJSON(*planPath, &pj); err != nil {
		fmt.Fprintf(stderr, "gate-cli plan: %v\n", err)
		return 1
	}
	plan, _, err := decodePlan(pj)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli plan: %v\n", err)
		return 1
	}
	opIDs := make([]string, len(plan.Ops))
	for i, o := range plan.Ops {
		opIDs[i] = o.OpID
	}
	tracker := dag.NewTracker(opIDs, plan.Edges)
	writeJSON(stdout, struct {
		OpCount   int      `json:"op_count"`
		ReadySet  []string `json:"ready_set"`
	}{OpCount: len(plan.Ops), ReadySet: tracker.ReadySet(map[string]bool{})})
	return 0
}

func runRunCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to policy/contracts/matrix config JSON")
	planPath := fs.String("plan", "", "path to plan JSON")
	initialPath := fs.String("initial", "", "path to initial state JSON")
	ledgerDir := fs.String("ledger", "", "optional bbolt ledger directory to append accepted commits to")
	logLevel := fs.String("log-level", "info", "log level")
	logFormat := fs.String("log-format", "json", "log format: json or console")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" || *planPath == "" || *initialPath == "" {
		fmt.Fprintln(stderr, "gate-cli run: -config, -plan, and -initial are required")
		return 2
	}

	log, err := logging.New(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli run: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	w, err := loadWorld(*configPath, *planPath, *initialPath)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli run: %v\n", err)
		return 1
	}
	if err := admitPlan(w.plan, w.initial, w.kernels, w.bundle); err != nil {
		writeJSON(stdout, runOutputJSON{Ok: false, Err: err.Error()})
		return 1
	}

	var led *ledger.Ledger
	if *ledgerDir != "" {
		led, err = ledger.Open(*ledgerDir)
		if err != nil {
			fmt.Fprintf(stderr, "gate-cli run: %v\n", err)
			return 1
		}
		defer func() { _ = led.Close() }()
		if err := led.InitGenesis(w.bundle.Digest(), w.bundle.GenesisPrevHash); err != nil {
			writeJSON(stdout, runOutputJSON{Ok: false, Err: err.Error()})
			return 1
		}
	}

	opIDs := make([]string, len(w.plan.Ops))
	for i, o := range w.plan.Ops {
		opIDs[i] = o.OpID
	}
	tracker := dag.NewTracker(opIDs, w.plan.Edges)
	var preconditions []gate.Precondition
	r := scheduler.NewRun(w.plan, tracker, w.actions, w.kernels, w.contracts, w.matrix, w.bundle,
		preconditions, w.initial, w.bundle.GenesisPrevHash)

	result, err := r.Drive()
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli run: %v\n", err)
		return 1
	}

	if led != nil {
		for _, c := range result.Commits {
			if err := led.Append(c); err != nil {
				fmt.Fprintf(stderr, "gate-cli run: ledger append: %v\n", err)
				return 1
			}
		}
	}

	out := runOutputJSON{
		Ok: result.HaltCode == "", Commits: len(result.Commits),
		HaltCode: string(result.HaltCode), FinalState: result.FinalState.Hash().Hex(),
	}
	for _, c := range result.Commits {
		out.ReceiptHex = append(out.ReceiptHex, c.Hash().Hex())
	}
	writeJSON(stdout, out)
	log.Info("run complete", zap.Int("commits", len(result.Commits)), zap.String("halt_code", string(result.HaltCode)))
	if !out.Ok {
		return 1
	}
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to policy/contracts/matrix config JSON")
	planPath := fs.String("plan", "", "path to plan JSON")
	initialPath := fs.String("initial", "", "path to initial state JSON")
	ledgerDir := fs.String("ledger", "", "bbolt ledger directory holding the recorded receipt chain")
	expectedFinal := fs.String("final-state-hash", "", "expected final state hash \"h:<64 hex>\"")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" || *planPath == "" || *initialPath == "" || *ledgerDir == "" || *expectedFinal == "" {
		fmt.Fprintln(stderr, "gate-cli verify: -config, -plan, -initial, -ledger, and -final-state-hash are required")
		return 2
	}

	w, err := loadWorld(*configPath, *planPath, *initialPath)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli verify: %v\n", err)
		return 1
	}
	if err := admitPlan(w.plan, w.initial, w.kernels, w.bundle); err != nil {
		writeJSON(stdout, verifyOutputJSON{Ok: false, Err: err.Error()})
		return 1
	}

	finalHash, err := canon.ParseHash32(*expectedFinal)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli verify: -final-state-hash: %v\n", err)
		return 2
	}

	led, err := ledger.Open(*ledgerDir)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli verify: %v\n", err)
		return 1
	}
	defer func() { _ = led.Close() }()
	recorded, err := replay.LedgerReceipts(led)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli verify: %v\n", err)
		return 1
	}

	var preconditions []gate.Precondition
	report, err := replay.Verify(w.plan, w.actions, w.kernels, w.contracts, w.matrix, w.bundle,
		preconditions, w.initial, w.bundle.GenesisPrevHash, recorded, finalHash)
	if err != nil {
		fmt.Fprintf(stderr, "gate-cli verify: %v\n", err)
		return 1
	}

	writeJSON(stdout, verifyOutputJSON{
		Ok: report.OK, FailingIndex: report.FailingIndex,
		FailedSubcheck: string(report.FailedSubcheck), Detail: report.Detail,
	})
	if !report.OK {
		return 1
	}
	return 0
}
