package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/storage"
	"github.com/failproof/stressor/internal/testcase"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "generate": false, "analyze": false, "dashboard": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestGenerateWritesLoadableCases(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cases.json")

	stdout, err := execute(t, "generate", "--seed", "42", "--out", out)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(stdout, "test cases") {
		t.Errorf("unexpected output: %q", stdout)
	}

	cases, err := testcase.Load(out)
	if err != nil {
		t.Fatalf("Load generated file: %v", err)
	}
	if len(cases) == 0 {
		t.Fatal("generated file holds no cases")
	}
	categories := make(map[string]bool)
	for _, tc := range cases {
		categories[tc.Category] = true
	}
	if len(categories) < 3 {
		t.Errorf("expected all categories in default suite, got %v", categories)
	}
}

func TestGenerateSingleCategory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cases.json")

	if _, err := execute(t, "generate", "--category", "prompt_injection", "--count", "4", "--out", out); err != nil {
		t.Fatalf("generate: %v", err)
	}
	cases, err := testcase.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cases) != 4 {
		t.Errorf("got %d cases, want 4", len(cases))
	}
	for _, tc := range cases {
		if tc.Category != "prompt_injection" {
			t.Errorf("case %s has category %q", tc.ID, tc.Category)
		}
	}
}

func TestGenerateUnknownCategory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cases.json")
	if _, err := execute(t, "generate", "--category", "nonsense", "--out", out); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestAnalyzeListsStoredRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	store, err := storage.OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	run := result.NewTestRun("smoke", result.RunConfig{Provider: "local", Model: "llama3"}, 2)
	run.Finalize(result.RunCompleted, "")
	ctx := context.Background()
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	for i, class := range []result.Classification{result.ClassSuccess, result.ClassRefusal} {
		res := result.TestResult{
			TestCaseID:     run.ID + "-" + string(rune('a'+i)),
			RunID:          run.ID,
			ModelName:      "llama3",
			LatencyMs:      100,
			AttemptCount:   1,
			Status:         result.StatusSuccess,
			Classification: class,
			Timestamp:      time.Now().UTC(),
		}
		if err := store.SaveResult(ctx, res); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	stdout, err := execute(t, "analyze", "--storage", "jsonl:"+path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(stdout, run.ID) {
		t.Errorf("listing missing run id: %q", stdout)
	}
	if !strings.Contains(stdout, "smoke") {
		t.Errorf("listing missing run name: %q", stdout)
	}
	if !strings.Contains(stdout, "50.0%") {
		t.Errorf("listing missing success rate: %q", stdout)
	}
}

func TestAnalyzeSingleRunReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	store, err := storage.OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	run := result.NewTestRun("deep", result.RunConfig{Provider: "openai", Model: "gpt-4o"}, 1)
	run.Finalize(result.RunCompleted, "")
	ctx := context.Background()
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	res := result.TestResult{
		TestCaseID:     "tc-1",
		RunID:          run.ID,
		ModelName:      "gpt-4o",
		LatencyMs:      250,
		AttemptCount:   1,
		Status:         result.StatusSuccess,
		Classification: result.ClassSuccess,
		Timestamp:      time.Now().UTC(),
	}
	if err := store.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	stdout, err := execute(t, "analyze", "--storage", "jsonl:"+path, run.ID)
	if err != nil {
		t.Fatalf("analyze run: %v", err)
	}
	if !strings.Contains(stdout, "Success Rate:      100.0%") {
		t.Errorf("report missing success rate: %q", stdout)
	}
	if !strings.Contains(stdout, run.ID) {
		t.Errorf("report missing run id: %q", stdout)
	}
}

func TestAnalyzeUnknownRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	if _, err := execute(t, "analyze", "--storage", "jsonl:"+path, "no-such-run"); err == nil {
		t.Error("expected error for unknown run id")
	}
}

func TestRunRequiresCases(t *testing.T) {
	if _, err := execute(t, "run", "--provider", "local", "--model", "llama3"); err == nil {
		t.Error("expected error when no cases file is supplied")
	}
}
