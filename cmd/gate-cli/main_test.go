package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"coherence.dev/gate/internal/policy"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(nil, &out, &errOut)
	if code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
	if errOut.Len() == 0 {
		t.Error("expected a usage message on stderr")
	}
}

func TestRunUnknownSubcommandReturns2(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"bogus"}, &out, &errOut)
	if code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
}

func writeTempJSON(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPlanCmdRequiresFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"plan"}, &out, &errOut)
	if code != 2 {
		t.Errorf("code = %d, want 2 when -plan is missing", code)
	}
}

func TestRunPlanCmdReportsOpCount(t *testing.T) {
	dir := t.TempDir()
	planPath := writeTempJSON(t, dir, "plan.json", planJSON{
		Ops: []opJSON{{OpID: "op-1", DeltaBound: "q:6:0"}},
		Actions: map[string]actionJSON{
			"op-1": {Type: "state_update", TargetBlocks: []int{0}, Budget: "q:6:0"},
		},
	})

	var out, errOut bytes.Buffer
	code := run([]string{"plan", "-plan", planPath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code = %d, want 0, stderr=%s", code, errOut.String())
	}
	var resp struct {
		OpCount  int      `json:"op_count"`
		ReadySet []string `json:"ready_set"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("could not decode plan output: %v, raw=%s", err, out.String())
	}
	if resp.OpCount != 1 {
		t.Errorf("OpCount = %d, want 1", resp.OpCount)
	}
	if len(resp.ReadySet) != 1 || resp.ReadySet[0] != "op-1" {
		t.Errorf("ReadySet = %v, want [op-1]", resp.ReadySet)
	}
}

// runFixtureDir writes a config/plan/initial-state JSON triple describing a
// single no-op action (so every law/disturbance check is trivially
// satisfied) and returns their paths.
func runFixtureDir(t *testing.T) (configPath, planPath, initialPath string) {
	t.Helper()
	dir := t.TempDir()

	configPath = writeTempJSON(t, dir, "config.json", configJSON{
		Policy: bundleJSON{
			ServiceLawKind:   string(policy.ServiceLinearCapped),
			ServiceLawMu:     "q:6:1000000",
			DisturbanceClass: string(policy.DP0),
			SchedulerRuleID:  policy.AllowedSchedulerRule,
			MaxParallelWidth: 4,
		},
		Matrix: matrixJSON{
			ID: "m1", Version: "v1", EntryMode: "sparse", SymmetryMode: "symmetric",
			DomainMode: "full", BlockCount: 1,
		},
		Contracts: contractSetJSON{},
	})

	planPath = writeTempJSON(t, dir, "plan.json", planJSON{
		Ops: []opJSON{{OpID: "op-1", Block: 0, DeltaBound: "q:6:1000000"}},
		Actions: map[string]actionJSON{
			"op-1": {Type: "state_update", TargetBlocks: []int{0}, Budget: "q:6:0"},
		},
	})

	initialPath = writeTempJSON(t, dir, "initial.json", stateJSON{SchemaID: "schema.v1"})
	return configPath, planPath, initialPath
}

func TestRunRunCmdEndToEndAccepts(t *testing.T) {
	configPath, planPath, initialPath := runFixtureDir(t)

	var out, errOut bytes.Buffer
	code := run([]string{"run", "-config", configPath, "-plan", planPath, "-initial", initialPath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code = %d, want 0, stderr=%s, stdout=%s", code, errOut.String(), out.String())
	}
	var resp runOutputJSON
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("could not decode run output: %v, raw=%s", err, out.String())
	}
	if !resp.Ok || resp.Commits != 1 {
		t.Errorf("resp = %+v, want Ok=true Commits=1", resp)
	}
}

func TestRunRunCmdMissingFlagsReturns2(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"run"}, &out, &errOut)
	if code != 2 {
		t.Errorf("code = %d, want 2 when required flags are missing", code)
	}
}

func TestRunVerifyCmdRoundTripsAfterLedgerRun(t *testing.T) {
	configPath, planPath, initialPath := runFixtureDir(t)
	ledgerDir := t.TempDir()

	var runOut, runErr bytes.Buffer
	code := run([]string{"run", "-config", configPath, "-plan", planPath, "-initial", initialPath, "-ledger", ledgerDir}, &runOut, &runErr)
	if code != 0 {
		t.Fatalf("run phase: code = %d, stderr=%s", code, runErr.String())
	}
	var runResp runOutputJSON
	if err := json.Unmarshal(runOut.Bytes(), &runResp); err != nil {
		t.Fatal(err)
	}

	var verifyOut, verifyErr bytes.Buffer
	code = run([]string{"verify", "-config", configPath, "-plan", planPath, "-initial", initialPath,
		"-ledger", ledgerDir, "-final-state-hash", runResp.FinalState}, &verifyOut, &verifyErr)
	if code != 0 {
		t.Fatalf("verify phase: code = %d, stderr=%s, stdout=%s", code, verifyErr.String(), verifyOut.String())
	}
	var verifyResp verifyOutputJSON
	if err := json.Unmarshal(verifyOut.Bytes(), &verifyResp); err != nil {
		t.Fatal(err)
	}
	if !verifyResp.Ok {
		t.Errorf("verifyResp = %+v, want Ok=true", verifyResp)
	}
}
