package recordfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/calcfield"
	"gopkg.in/yaml.v3"
)

const invoiceYAML = `
name: invoices
fields:
  - id: qty
    kind: constant
  - id: price
    kind: constant
  - id: discount
    kind: constant
  - id: subtotal
    kind: calculated
    formula: "#{qty} * #{price}"
  - id: total
    kind: calculated
    formula: "#{subtotal} - #{subtotal} * #{discount}"
  - id: per_unit
    kind: calculated
    formula: "#{total} / #{qty}"
  - id: loop
    kind: calculated
    formula: "#{loop} + 1"
records:
  - id: inv-1
    enabled: [qty, price, discount, subtotal, total, per_unit]
    values: {qty: "4", price: "2.5", discount: "10%"}
  - id: inv-2
    enabled: [qty, price, subtotal, total, per_unit, loop]
    values: {qty: "0", price: "3"}
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write record file: %v", err)
	}
	return path
}

func TestEndToEnd_YAMLToReport(t *testing.T) {
	// "10%" is not an exact number literal for stored values
	path := writeTemp(t, strings.Replace(invoiceYAML, `discount: "10%"`, `discount: "0.1"`, 1))

	file, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	requests, err := file.Requests()
	if err != nil {
		t.Fatalf("Requests failed: %v", err)
	}

	engine, err := calcfield.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer engine.Close()

	outcomes, err := engine.CalculateBatch(context.Background(), requests)
	if err != nil {
		t.Fatalf("CalculateBatch failed: %v", err)
	}

	var buf bytes.Buffer
	if err := NewReport(outcomes).Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var got Report
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("report is not valid YAML: %v\n%s", err, buf.String())
	}

	want := Report{Records: []RecordReport{
		{
			ID: "inv-1",
			Values: map[string]string{
				"subtotal": "10",
				"total":    "9",
				"per_unit": "2.25",
			},
		},
		{
			ID:     "inv-2",
			Values: map[string]string{"subtotal": "0"},
			Blanks: map[string]string{
				"loop":     "circular",
				"total":    "disabled_value(discount)",
				"per_unit": "disabled_value(discount)",
			},
		},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("report mismatch\n got: %+v\nwant: %+v\n%s", got, want, buf.String())
	}
}

func TestEndToEnd_DivisionByZeroQuantity(t *testing.T) {
	path := writeTemp(t, `
fields:
  - id: qty
    kind: constant
  - id: avg
    kind: calculated
    formula: "100 / #{qty}"
records:
  - id: r
    enabled: [qty, avg]
    values: {qty: "0"}
`)
	file, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	requests, err := file.Requests()
	if err != nil {
		t.Fatalf("Requests failed: %v", err)
	}
	engine, err := calcfield.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer engine.Close()

	outcomes, err := engine.CalculateBatch(context.Background(), requests)
	if err != nil {
		t.Fatalf("CalculateBatch failed: %v", err)
	}
	report := NewReport(outcomes)
	if got := report.Records[0].Blanks["avg"]; got != "mathematical" {
		t.Errorf("avg blank = %q, want mathematical", got)
	}
}

func TestEndToEnd_InvalidFile(t *testing.T) {
	path := writeTemp(t, invoiceYAML)
	if _, err := LoadAndValidate(path); err == nil || !strings.Contains(err.Error(), "discount") {
		t.Fatalf("expected an error about the discount value, got %v", err)
	}

	if _, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
