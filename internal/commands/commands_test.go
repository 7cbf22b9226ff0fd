package commands_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/internal/commands"
)

const chartYAML = `
currency: usd
store:
  driver: sqlite
  dsn: %s
log:
  level: error
accounts:
  - code: "1000"
    name: Operating cash
    category: ASSET
  - code: "1200"
    name: Tenant receivables
    category: ASSET
  - code: "4000"
    name: Rental income
    category: INCOME
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	body := fmt.Sprintf(chartYAML, filepath.Join(dir, "ledger.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runLedgerctl(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := commands.NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := runLedgerctl(t, cfgPath, args...)
	require.NoError(t, err, "ledgerctl %s", strings.Join(args, " "))
	return out
}

func TestPostBalanceVoid(t *testing.T) {
	cfg := setup(t)

	assert.Contains(t, mustRun(t, cfg, "migrate"), "sqlite store is up to date")
	assert.Contains(t, mustRun(t, cfg, "accounts", "seed"), "created 3 of 3 accounts")

	post := []string{"post", "--key", "L1-rent-2025-01", "--subject", "L1",
		"-e", "1200:debit:500.00", "-e", "4000:credit:500.00"}
	out := mustRun(t, cfg, post...)
	require.True(t, strings.HasPrefix(out, "posted pg_"), out)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	entryID := strings.Fields(lines[1])[0]
	assert.True(t, strings.HasPrefix(entryID, "le_"))

	out = mustRun(t, cfg, post...)
	assert.True(t, strings.HasPrefix(out, "replayed pg_"), out)

	assert.Equal(t, "$500.00\n", mustRun(t, cfg, "balance", "1200", "--subject", "L1"))
	assert.Equal(t, "$500.00\n", mustRun(t, cfg, "balance", "4000"))

	out = mustRun(t, cfg, "void", entryID, "--reason", "entered twice", "--reverse")
	assert.Contains(t, out, "voided 2 entries")
	assert.Contains(t, out, "reversal pg_")

	assert.Equal(t, "$0.00\n", mustRun(t, cfg, "balance", "1200"))
	assert.Contains(t, mustRun(t, cfg, "check"), "discrepancy $0.00")

	_, err := runLedgerctl(t, cfg, "void", entryID, "--reason", "again")
	assert.ErrorContains(t, err, "already voided")
}

func TestPostRejectsBadInput(t *testing.T) {
	cfg := setup(t)
	mustRun(t, cfg, "accounts", "seed")

	tests := []struct {
		name    string
		entries []string
		want    string
	}{
		{"malformed", []string{"-e", "1200-debit-5", "-e", "4000:credit:5"}, "ACCOUNT:SIDE:AMOUNT"},
		{"bad side", []string{"-e", "1200:up:5", "-e", "4000:credit:5"}, "unknown side"},
		{"unbalanced", []string{"-e", "1200:debit:5", "-e", "4000:credit:4"}, "do not balance"},
		{"unknown account", []string{"-e", "1300:debit:5", "-e", "4000:credit:5"}, "unknown account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runLedgerctl(t, cfg, append([]string{"post"}, tt.entries...)...)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	out := mustRun(t, cfg, "check")
	assert.Contains(t, out, "entries 0")
}

func TestBillingCycle(t *testing.T) {
	cfg := setup(t)
	mustRun(t, cfg, "accounts", "seed")

	assert.Contains(t, mustRun(t, cfg, "subjects", "set", "L1",
		"--receivable", "1200", "--start", "2024-12-01"), "subject L1 active")
	defID := strings.TrimSpace(mustRun(t, cfg, "charges", "add",
		"--subject", "L1", "--amount", "1200", "--income", "4000", "--due-day", "5"))
	assert.True(t, strings.HasPrefix(defID, "rcd_"), defID)

	assert.Contains(t, mustRun(t, cfg, "bill", "--as-of", "2025-01-15"),
		"period 2025-01: 1 posted, 0 skipped, 0 errored")
	assert.Contains(t, mustRun(t, cfg, "bill", "--as-of", "2025-01-20"),
		"period 2025-01: 0 posted, 1 skipped, 0 errored")

	list := mustRun(t, cfg, "charges", "list")
	assert.Contains(t, list, defID)
	assert.Contains(t, list, "2025-01")

	assert.Equal(t, "$1200.00\n", mustRun(t, cfg, "balance", "1200", "--subject", "L1"))

	accounts := mustRun(t, cfg, "accounts", "list", "--category", "income")
	assert.Contains(t, accounts, "Rental income")
	assert.NotContains(t, accounts, "Operating cash")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: oracle\n"), 0o600))

	_, err := runLedgerctl(t, path, "check")
	assert.ErrorContains(t, err, "Driver")
}
