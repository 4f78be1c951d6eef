package config

import "testing"

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.92")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.92 {
		t.Fatalf("expected 0.92, got %v", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "not-a-number")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-float value, got nil")
	}
}

func TestEnvStrSliceParsesCommaSeparated(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,c")
	got := envStrSlice("TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("CETI_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid CETI_PORT")
	}
	if got := err.Error(); !contains(got, "CETI_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention CETI_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("CETI_PORT", "abc")
	t.Setenv("CETI_EMBEDDING_DIMENSIONS", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "CETI_PORT") {
		t.Fatalf("error should mention CETI_PORT, got: %s", got)
	}
	if !contains(got, "CETI_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention CETI_EMBEDDING_DIMENSIONS, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if len(cfg.JudgeModels) < MinQuorumSize {
		t.Fatalf("expected default JudgeModels to satisfy quorum invariant, got %v", cfg.JudgeModels)
	}
	if cfg.MaxRounds < MinAdversarialRounds {
		t.Fatalf("expected default MaxRounds to satisfy round invariant, got %d", cfg.MaxRounds)
	}
}

func TestLoad_MaxRoundsBelowInvariantFails(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "2")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when MAX_ROUNDS violates the hard invariant")
	}
	if !contains(err.Error(), "MAX_ROUNDS") {
		t.Fatalf("error should mention MAX_ROUNDS, got: %s", err.Error())
	}
}

func TestLoad_JudgeModelsBelowQuorumFails(t *testing.T) {
	t.Setenv("JUDGE_MODELS", "a,b")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when JUDGE_MODELS is below the quorum floor")
	}
	if !contains(err.Error(), "JUDGE_MODELS") {
		t.Fatalf("error should mention JUDGE_MODELS, got: %s", err.Error())
	}
}

func TestLoad_SimilarityThresholdOutOfRangeFails(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "1.5")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when SIMILARITY_THRESHOLD is out of [0,1]")
	}
}

func TestLoad_OrthogonalityWeightBelowFloorFails(t *testing.T) {
	t.Setenv("CETI_MECHANICAL_ORTHOGONALITY_WEIGHT", "0.1")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when orthogonality weight is below the invariant floor")
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("CETI_PORT", "9090")
	t.Setenv("LEDGER_PATH", "/tmp/test-ledger.db")
	t.Setenv("GENERATOR_MODEL", "test-generator")
	t.Setenv("JUDGE_MODELS", "j1,j2,j3,j4")
	t.Setenv("MAX_ROUNDS", "5")
	t.Setenv("SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("CETI_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.LedgerPath != "/tmp/test-ledger.db" {
		t.Fatalf("expected LedgerPath override, got %q", cfg.LedgerPath)
	}
	if cfg.GeneratorModel != "test-generator" {
		t.Fatalf("expected GeneratorModel override, got %q", cfg.GeneratorModel)
	}
	if len(cfg.JudgeModels) != 4 {
		t.Fatalf("expected 4 judge models, got %d", len(cfg.JudgeModels))
	}
	if cfg.MaxRounds != 5 {
		t.Fatalf("expected MaxRounds 5, got %d", cfg.MaxRounds)
	}
	if cfg.SimilarityThreshold != 0.8 {
		t.Fatalf("expected SimilarityThreshold 0.8, got %v", cfg.SimilarityThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel debug, got %q", cfg.LogLevel)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
