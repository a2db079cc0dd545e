package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "pyabcctl version "+version) {
		t.Fatalf("unexpected version output: %q", out)
	}

	out, err = executeCommand(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal version output: %v", err)
	}
	if payload["version"] != version {
		t.Fatalf("expected version %s, got %q", version, payload["version"])
	}
}

func TestProblemsCmd(t *testing.T) {
	out, err := executeCommand(t, "problems")
	if err != nil {
		t.Fatalf("problems: %v", err)
	}
	if !strings.Contains(out, "name=gaussian-mean") {
		t.Fatalf("expected gaussian-mean in output: %q", out)
	}

	out, err = executeCommand(t, "problems", "--json")
	if err != nil {
		t.Fatalf("problems --json: %v", err)
	}
	var items []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Models      int    `json:"models"`
	}
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("unmarshal problems output: %v", err)
	}
	if len(items) < 4 {
		t.Fatalf("expected at least 4 problems, got %d", len(items))
	}
}

func TestRunCmdJSON(t *testing.T) {
	out, err := executeCommand(t,
		"run",
		"--problem", "gaussian-mean",
		"--population", "15",
		"--generations", "1",
		"--seed", "9",
		"--sampler", "singlecore",
		"--log-level", "error",
		"--particles", "3",
		"--json",
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var payload runOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal run output: %v\n%s", err, out)
	}
	if payload.RunID == "" {
		t.Fatal("expected run id")
	}
	if payload.StopReason != "max_generations_reached" {
		t.Fatalf("unexpected stop reason: %s", payload.StopReason)
	}
	if len(payload.Generations) != 1 {
		t.Fatalf("expected 1 generation, got %d", len(payload.Generations))
	}
	if payload.Generations[0].Accepted != 15 {
		t.Fatalf("expected 15 accepted particles, got %d", payload.Generations[0].Accepted)
	}
	if payload.FinalEpsilon != payload.Generations[0].Epsilon {
		t.Fatalf("final epsilon %v does not match generation epsilon %v",
			payload.FinalEpsilon, payload.Generations[0].Epsilon)
	}
	if len(payload.Particles) != 3 {
		t.Fatalf("expected 3 particles, got %d", len(payload.Particles))
	}
	for i := 1; i < len(payload.Particles); i++ {
		if payload.Particles[i].Weight > payload.Particles[i-1].Weight {
			t.Fatal("expected particles sorted by descending weight")
		}
	}
	for _, p := range payload.Particles {
		if _, ok := p.Parameter["mu"]; !ok {
			t.Fatalf("particle missing mu parameter: %+v", p.Parameter)
		}
	}
}

func TestRunCmdHumanOutput(t *testing.T) {
	out, err := executeCommand(t,
		"run",
		"--problem", "gaussian-mean",
		"--population", "10",
		"--generations", "1",
		"--seed", "4",
		"--sampler", "singlecore",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "run completed run_id=") {
		t.Fatalf("expected run summary line, got %q", out)
	}
	if !strings.Contains(out, "generation=0 epsilon=") {
		t.Fatalf("expected generation line, got %q", out)
	}
	if !strings.Contains(out, "model=0 probability=1.000000") {
		t.Fatalf("expected model probability line, got %q", out)
	}
}

func TestRunCmdConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	configContent := `
problem: gaussian-mean
population: 12
generations: 1
seed: 3

sampler:
  kind: singlecore

logging:
  level: error
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := executeCommand(t, "run", "--config", configPath, "--json")
	if err != nil {
		t.Fatalf("run with config: %v", err)
	}
	var payload runOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal run output: %v", err)
	}
	if payload.Generations[0].Accepted != 12 {
		t.Fatalf("expected population 12 from config, got %d", payload.Generations[0].Accepted)
	}

	// Flags override the config file.
	out, err = executeCommand(t, "run", "--config", configPath, "--population", "18", "--json")
	if err != nil {
		t.Fatalf("run with override: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal run output: %v", err)
	}
	if payload.Generations[0].Accepted != 18 {
		t.Fatalf("expected flag override population 18, got %d", payload.Generations[0].Accepted)
	}
}

func TestRunCmdRejectsInvalidConfig(t *testing.T) {
	_, err := executeCommand(t,
		"run",
		"--problem", "gaussian-mean",
		"--population", "-5",
		"--log-level", "error",
	)
	if err == nil || !strings.Contains(err.Error(), "population must be positive") {
		t.Fatalf("expected population validation error, got %v", err)
	}
}

func TestFormatParameter(t *testing.T) {
	got := formatParameter(map[string]float64{"slope": 0.5, "intercept": 1})
	want := "intercept=1.000000,slope=0.500000"
	if got != want {
		t.Fatalf("formatParameter = %q, want %q", got, want)
	}
}
