package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baymarket/baymarket-backend/pkg/migrate"
)

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestSettlementMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_settlement_core.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no settlement migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE UNIQUE INDEX idx_transactions_order_vendor ON transactions (order_id, vendor_store_id)",
		"order_id UUID NOT NULL UNIQUE",
		"REFERENCES orders (id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestGovernanceMigrationCoversStateAndAudit(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_governance_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no governance migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE store_risk_state",
		"CREATE TABLE risk_events",
		"CREATE TABLE store_trust_state",
		"CREATE TABLE trust_events",
		"CREATE TABLE job_run_state",
		"risk_level TEXT NOT NULL DEFAULT 'NORMAL'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
