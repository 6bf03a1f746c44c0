package recordfile

import (
	"slices"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/calcfield"
)

func TestFile_Validate_TableDriven(t *testing.T) {
	base := func() File {
		return File{
			Fields: []Field{
				{ID: "a", Kind: "constant"},
				{ID: "w", Kind: "weighted_item_list", Options: map[string]string{"lo": "1", "hi": "2.5"}},
				{ID: "c", Kind: "calculated", Formula: "#{a} * #{w}"},
			},
			Records: []Record{
				{ID: "r1", Enabled: []string{"a", "w", "c"}, Values: map[string]string{"a": "3", "w": "hi"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(f *File)
		wantErr string
	}{
		{"valid file", func(f *File) {}, ""},
		{"cyclic formulas are allowed", func(f *File) {
			f.Fields = append(f.Fields, Field{ID: "x", Kind: "calculated", Formula: "#{x} + 1"})
		}, ""},
		{"duplicate field", func(f *File) { f.Fields = append(f.Fields, Field{ID: "a", Kind: "constant"}) }, "duplicate field"},
		{"field without id", func(f *File) { f.Fields[0].ID = "" }, "has no id"},
		{"unknown kind", func(f *File) { f.Fields[0].Kind = "text" }, "unknown kind"},
		{"calculated without formula", func(f *File) { f.Fields[2].Formula = "" }, "has no formula"},
		{"bad formula", func(f *File) { f.Fields[2].Formula = "#{a} *" }, "field 'c'"},
		{"formula on constant", func(f *File) { f.Fields[0].Formula = "1" }, "cannot have a formula"},
		{"options on constant", func(f *File) { f.Fields[0].Options = map[string]string{"x": "1"} }, "cannot have options"},
		{"bad option weight", func(f *File) { f.Fields[1].Options["hi"] = "lots" }, "option 'hi'"},
		{"duplicate record", func(f *File) { f.Records = append(f.Records, f.Records[0]) }, "duplicate record"},
		{"record without id", func(f *File) { f.Records[0].ID = "" }, "record without id"},
		{"enables undefined field", func(f *File) { f.Records[0].Enabled = append(f.Records[0].Enabled, "zz") }, "enables undefined"},
		{"value for undefined field", func(f *File) { f.Records[0].Values["zz"] = "1" }, "undefined field 'zz'"},
		{"bad number", func(f *File) { f.Records[0].Values["a"] = "1.2.3" }, "field 'a'"},
		{"unknown option", func(f *File) { f.Records[0].Values["w"] = "mid" }, "unknown option"},
		{"requests constant", func(f *File) { f.Records[0].Requested = []string{"a"} }, "not a calculated field"},
		{"requests undefined", func(f *File) { f.Records[0].Requested = []string{"zz"} }, "requests undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base()
			tt.mutate(&f)
			err := f.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("fields:\n  - id: a\n    knd: constant\n"))
	if err == nil {
		t.Fatal("expected an error for a misspelled key")
	}
}

func TestFile_Requests(t *testing.T) {
	f, err := Decode(strings.NewReader(`
name: sample
fields:
  - id: qty
    kind: constant
  - id: price
    kind: constant
  - id: priority
    kind: weighted_item_list
    options: {low: "1", high: "5/2"}
  - id: total
    kind: calculated
    formula: "#{qty} * #{price}"
  - id: score
    kind: calculated
    formula: "#{priority} * 2"
records:
  - id: r1
    enabled: [qty, price, priority, total, score]
    values: {qty: "3", price: "0.5", priority: high}
  - id: r2
    enabled: [qty, total, score]
    requested: [total]
`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	requests, err := f.Requests()
	if err != nil {
		t.Fatalf("Requests failed: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}

	r1 := requests[0]
	if r1.RecordID != "r1" {
		t.Errorf("first request is %q", r1.RecordID)
	}
	if want := []calcfield.FieldID{"score", "total"}; !slices.Equal(r1.Requested, want) {
		t.Errorf("r1 requested %v, want %v", r1.Requested, want)
	}
	if got := r1.Context.Stored["price"]; got == nil || got.Number.RatString() != "1/2" {
		t.Errorf("price stored as %v", got)
	}
	if got := r1.Context.Stored["priority"]; !got.IsSelection() || got.Option != "high" {
		t.Errorf("priority stored as %v", got)
	}
	w, ok := r1.Definitions["priority"].Weight("low")
	if !ok || w.RatString() != "1" {
		t.Errorf("low weight = %v", w)
	}

	r2 := requests[1]
	if want := []calcfield.FieldID{"total"}; !slices.Equal(r2.Requested, want) {
		t.Errorf("r2 requested %v, want %v", r2.Requested, want)
	}
	if r2.Context.IsEnabled("price") {
		t.Error("price should not be enabled on r2")
	}
}
