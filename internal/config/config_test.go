package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestNew_LoadsValidConfigWithDefaults(t *testing.T) {
	path := writeTestConfig(t, `
account_id: acct-1
database:
  url: postgres://localhost/test
`)
	_, cfg, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.ScanIntervalSec != 60 {
		t.Errorf("expected default scan_interval 60, got %d", cfg.ScanIntervalSec)
	}
	if cfg.MinBuyScore != 45.0 {
		t.Errorf("expected default min_buy_score 45, got %v", cfg.MinBuyScore)
	}
	if cfg.BudgetFractionMin != 0.08 || cfg.BudgetFractionMax != 0.20 {
		t.Errorf("expected default budget range [0.08, 0.20], got [%v, %v]", cfg.BudgetFractionMin, cfg.BudgetFractionMax)
	}
}

func TestNew_RejectsMissingAccountID(t *testing.T) {
	path := writeTestConfig(t, `
database:
  url: postgres://localhost/test
`)
	if _, _, err := New(path, zerolog.Nop()); err == nil {
		t.Fatal("expected validation error for missing account_id")
	}
}

func TestNew_RejectsInvalidBudgetRange(t *testing.T) {
	path := writeTestConfig(t, `
account_id: acct-1
database:
  url: postgres://localhost/test
budget_range_min: 0.5
budget_range_max: 0.2
`)
	if _, _, err := New(path, zerolog.Nop()); err == nil {
		t.Fatal("expected validation error for inverted budget range")
	}
}

func TestNew_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, `
account_id: acct-1
database:
  url: postgres://localhost/test
`)
	t.Setenv("TRADEENGINE_MIN_BUY_SCORE", "70")
	_, cfg, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.MinBuyScore != 70 {
		t.Errorf("expected env override to set min_buy_score=70, got %v", cfg.MinBuyScore)
	}
}

func TestLiveTunablesChanged_DetectsScoreChange(t *testing.T) {
	old := Config{MinBuyScore: 45}
	updated := Config{MinBuyScore: 50}
	if !liveTunablesChanged(old, updated) {
		t.Error("expected min_buy_score change to be detected")
	}
}

func TestStructuralChanged_IgnoresLiveTunables(t *testing.T) {
	old := Config{AccountID: "acct-1", MinBuyScore: 45}
	updated := Config{AccountID: "acct-1", MinBuyScore: 50}
	if structuralChanged(old, updated) {
		t.Error("expected structural diff to ignore a live-tunable-only change")
	}
}

func TestStructuralChanged_DetectsAccountIDChange(t *testing.T) {
	old := Config{AccountID: "acct-1"}
	updated := Config{AccountID: "acct-2"}
	if !structuralChanged(old, updated) {
		t.Error("expected account_id change to be detected as structural")
	}
}
