package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: orders
fields:
  - id: qty
    kind: constant
  - id: price
    kind: constant
  - id: total
    kind: calculated
    formula: "#{qty} * #{price}"
  - id: share
    kind: calculated
    formula: "#{total} / #{qty}"
records:
  - id: o-1
    enabled: [qty, price, total, share]
    values: {qty: "3", price: "1.5"}
  - id: o-2
    enabled: [qty, total, share]
    values: {qty: "2"}
`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestCalcCommand(t *testing.T) {
	out := run(t, "calc", writeSample(t))

	assert.Contains(t, out, "id: o-1")
	assert.Contains(t, out, `total: "4.5"`)
	assert.Contains(t, out, `share: "1.5"`)
	assert.Contains(t, out, "disabled_value(price)")
}

func TestImportAndRecalcCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "orders.db")

	out := run(t, "import", writeSample(t), db)
	assert.Contains(t, out, "imported 4 fields and 2 records")

	out = run(t, "recalc", db, "o-1")
	assert.Contains(t, out, `total: "4.5"`)

	out = run(t, "recalc", db, "o-1", "share")
	assert.Contains(t, out, `share: "1.5"`)
	assert.NotContains(t, out, "total")
}

func TestCalcCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  - id: a\n    kind: nope\n"), 0o600))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"calc", path})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}
