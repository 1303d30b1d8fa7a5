package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerwatch/ppscan/internal/cli"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := cli.NewRootCmd()

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), err
}

func TestScanWritePolicy(t *testing.T) {
	policyPath := filepath.Join(t.TempDir(), "policy.yaml")

	_, err := runCommand(t, "scan", "--write-policy", "--policy", policyPath)
	require.NoError(t, err)

	data, err := os.ReadFile(policyPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: Policy")
	assert.Contains(t, string(data), "apiVersion: ppscan.partnerwatch.io/v1beta1")
}

func TestScanRequiresURLs(t *testing.T) {
	_, err := runCommand(t, "scan")
	require.Error(t, err)
	assert.ErrorContains(t, err, "--urls is required")
}

func TestScanInvalidPolicyFailsBeforeFetch(t *testing.T) {
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
apiVersion: ppscan.partnerwatch.io/v1beta1
kind: Policy
rules:
  - id: R1
    kind: near
    patterns: [foo]
`), 0o600))

	urlsPath := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(urlsPath, []byte("https://example.invalid\n"), 0o600))

	_, err := runCommand(t, "scan", "--urls", urlsPath, "--policy", policyPath)
	require.Error(t, err)
	assert.ErrorContains(t, err, "requires at least one qualifier pattern")
}

func TestMarkPrint(t *testing.T) {
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`apiVersion: ppscan.partnerwatch.io/v1beta1
kind: Policy
rules:
  - id: DISC_001
    kind: pattern
    patterns: ['APR\b']
`), 0o600))

	marksPath := filepath.Join(dir, "marks.csv")
	require.NoError(t, os.WriteFile(marksPath, []byte(
		"url,rule_id,reason\nhttps://blog.example/post,DISC_001,editorial\n",
	), 0o600))

	out, err := runCommand(t, "mark", "--marks", marksPath, "--policy", policyPath, "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "ruleId: DISC_001")
	assert.Contains(t, out, "urlContains: https://blog.example/post")

	// Print must not modify the policy file.
	data, err := os.ReadFile(policyPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "urlContains")
}

func TestMarkAppendPolicy(t *testing.T) {
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`apiVersion: ppscan.partnerwatch.io/v1beta1
kind: Policy
# Reviewed with legal.
rules:
  - id: DISC_001
    kind: pattern
    patterns: ['APR\b']
`), 0o600))

	marksPath := filepath.Join(dir, "marks.csv")
	require.NoError(t, os.WriteFile(marksPath, []byte(
		"url,rule_id,reason\nhttps://blog.example/post,DISC_001,editorial\n",
	), 0o600))

	out, err := runCommand(t, "mark", "--marks", marksPath, "--policy", policyPath, "--append-policy")
	require.NoError(t, err)
	assert.Contains(t, out, "1 suppression appended")

	data, err := os.ReadFile(policyPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Reviewed with legal.")
	assert.Contains(t, string(data), "urlContains: https://blog.example/post")

	// Re-running with the same marks is a no-op.
	out, err = runCommand(t, "mark", "--marks", marksPath, "--policy", policyPath, "--append-policy")
	require.NoError(t, err)
	assert.Contains(t, out, "no new suppressions")
}

func TestMarkRequiresMode(t *testing.T) {
	_, err := runCommand(t, "mark", "--marks", "whatever.csv")
	require.Error(t, err)
	assert.ErrorContains(t, err, "--append-policy or --print")
}
