// Package recordfile reads field definitions and records from YAML and
// turns them into engine inputs.
//
//	name: invoices
//	fields:
//	  - id: qty
//	    kind: constant
//	  - id: priority
//	    kind: weighted_item_list
//	    options: {low: "1", high: "5/2"}
//	  - id: total
//	    kind: calculated
//	    formula: "#{qty} * #{priority}"
//	records:
//	  - id: inv-1
//	    enabled: [qty, priority, total]
//	    values: {qty: "3", priority: high}
//	    requested: [total]
//
// Numbers are strings holding an exact decimal or a fraction. The value of a
// weighted item list is the key of the selected option.
package recordfile

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"slices"

	"github.com/ZanzyTHEbar/calcfield"
	"github.com/ZanzyTHEbar/calcfield/internal/formula"
	"gopkg.in/yaml.v3"
)

type File struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Fields      []Field  `yaml:"fields"`
	Records     []Record `yaml:"records"`
}

type Field struct {
	ID      string            `yaml:"id"`
	Kind    string            `yaml:"kind"`
	Formula string            `yaml:"formula,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

type Record struct {
	ID        string            `yaml:"id"`
	Enabled   []string          `yaml:"enabled"`
	Values    map[string]string `yaml:"values,omitempty"`
	Requested []string          `yaml:"requested,omitempty"`
}

// Loader loads a File from a source such as a path.
type Loader interface {
	Load(source string) (*File, error)
	Format() string // e.g., "yaml"
}

var loaderRegistry = make(map[string]Loader)

// RegisterLoader registers a Loader under its format name.
func RegisterLoader(loader Loader) {
	loaderRegistry[loader.Format()] = loader
}

// GetLoader retrieves a loader by format name.
func GetLoader(format string) (Loader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements Loader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*File, error) {
	return LoadFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterLoader(YAMLLoader{})
}

// LoadFile parses a YAML record file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML record file from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse record YAML: %w", err)
	}
	return &file, nil
}

// Validate checks field and record consistency: unique ids, known kinds,
// parseable formulas and numbers, and references to defined fields and
// options only. Formula cycles are legal; the engine blanks them.
func (f *File) Validate() error {
	fields := make(map[string]*Field, len(f.Fields))
	for i := range f.Fields {
		fd := &f.Fields[i]
		if fd.ID == "" {
			return fmt.Errorf("field %d has no id", i)
		}
		if _, exists := fields[fd.ID]; exists {
			return fmt.Errorf("duplicate field ID found: %s", fd.ID)
		}
		fields[fd.ID] = fd
		if err := fd.validate(); err != nil {
			return err
		}
	}

	records := make(map[string]struct{}, len(f.Records))
	for _, rec := range f.Records {
		if rec.ID == "" {
			return fmt.Errorf("record without id")
		}
		if _, exists := records[rec.ID]; exists {
			return fmt.Errorf("duplicate record ID found: %s", rec.ID)
		}
		records[rec.ID] = struct{}{}

		for _, id := range rec.Enabled {
			if _, ok := fields[id]; !ok {
				return fmt.Errorf("record '%s' enables undefined field '%s'", rec.ID, id)
			}
		}
		for id, raw := range rec.Values {
			fd, ok := fields[id]
			if !ok {
				return fmt.Errorf("record '%s' has a value for undefined field '%s'", rec.ID, id)
			}
			if calcfield.FieldKind(fd.Kind) == calcfield.KindWeightedItemList {
				if _, ok := fd.Options[raw]; !ok {
					return fmt.Errorf("record '%s' selects unknown option '%s' of field '%s'", rec.ID, raw, id)
				}
				continue
			}
			if _, err := calcfield.ParseNumber(raw); err != nil {
				return fmt.Errorf("record '%s' field '%s': %w", rec.ID, id, err)
			}
		}
		for _, id := range rec.Requested {
			fd, ok := fields[id]
			if !ok {
				return fmt.Errorf("record '%s' requests undefined field '%s'", rec.ID, id)
			}
			if calcfield.FieldKind(fd.Kind) != calcfield.KindCalculated {
				return fmt.Errorf("record '%s' requests '%s', which is not a calculated field", rec.ID, id)
			}
		}
	}
	return nil
}

func (fd *Field) validate() error {
	kind := calcfield.FieldKind(fd.Kind)
	if !kind.Valid() {
		return fmt.Errorf("field '%s' has unknown kind '%s'", fd.ID, fd.Kind)
	}
	if kind == calcfield.KindCalculated {
		if fd.Formula == "" {
			return fmt.Errorf("calculated field '%s' has no formula", fd.ID)
		}
		if _, err := formula.Parse(fd.Formula); err != nil {
			return fmt.Errorf("field '%s': %w", fd.ID, err)
		}
	} else if fd.Formula != "" {
		return fmt.Errorf("field '%s' is %s and cannot have a formula", fd.ID, fd.Kind)
	}
	if kind != calcfield.KindWeightedItemList && len(fd.Options) > 0 {
		return fmt.Errorf("field '%s' is %s and cannot have options", fd.ID, fd.Kind)
	}
	for key, raw := range fd.Options {
		if _, err := calcfield.ParseNumber(raw); err != nil {
			return fmt.Errorf("field '%s' option '%s': %w", fd.ID, key, err)
		}
	}
	return nil
}

// Definitions converts the fields of a validated file.
func (f *File) Definitions() (calcfield.Definitions, error) {
	defs := make(calcfield.Definitions, len(f.Fields))
	for _, fd := range f.Fields {
		def := calcfield.Definition{
			ID:      calcfield.FieldID(fd.ID),
			Kind:    calcfield.FieldKind(fd.Kind),
			Formula: fd.Formula,
		}
		if len(fd.Options) > 0 {
			def.Options = make(map[string]*big.Rat, len(fd.Options))
			for key, raw := range fd.Options {
				w, err := calcfield.ParseNumber(raw)
				if err != nil {
					return nil, fmt.Errorf("field '%s' option '%s': %w", fd.ID, key, err)
				}
				def.Options[key] = w
			}
		}
		defs[def.ID] = def
	}
	return defs, nil
}

// Context builds the record's evaluation context.
func (r Record) Context(defs calcfield.Definitions) (calcfield.EvaluationContext, error) {
	ectx := calcfield.NewEvaluationContext()
	for _, id := range r.Enabled {
		ectx.Enable(calcfield.FieldID(id))
	}
	for id, raw := range r.Values {
		fid := calcfield.FieldID(id)
		if defs[fid].Kind == calcfield.KindWeightedItemList {
			ectx.Store(fid, calcfield.SelectionValue(raw))
			continue
		}
		n, err := calcfield.ParseNumber(raw)
		if err != nil {
			return calcfield.EvaluationContext{}, fmt.Errorf("record '%s' field '%s': %w", r.ID, id, err)
		}
		ectx.Store(fid, calcfield.NumberValue(n))
	}
	return ectx, nil
}

// RequestedFields returns the record's requested fields, or every enabled
// calculated field when none are listed.
func (r Record) RequestedFields(defs calcfield.Definitions) []calcfield.FieldID {
	if len(r.Requested) > 0 {
		ids := make([]calcfield.FieldID, 0, len(r.Requested))
		for _, id := range r.Requested {
			ids = append(ids, calcfield.FieldID(id))
		}
		return ids
	}
	var ids []calcfield.FieldID
	for _, id := range defs.Calculated() {
		if slices.Contains(r.Enabled, string(id)) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Requests converts every record into a batch request, in file order.
func (f *File) Requests() ([]calcfield.RecordRequest, error) {
	defs, err := f.Definitions()
	if err != nil {
		return nil, err
	}
	requests := make([]calcfield.RecordRequest, 0, len(f.Records))
	for _, rec := range f.Records {
		ectx, err := rec.Context(defs)
		if err != nil {
			return nil, err
		}
		requests = append(requests, calcfield.RecordRequest{
			RecordID:    rec.ID,
			Requested:   rec.RequestedFields(defs),
			Definitions: defs,
			Context:     ectx,
		})
	}
	return requests, nil
}

// LoadAndValidate loads a file with the default loader (YAML) and
// validates it.
func LoadAndValidate(path string) (*File, error) {
	loader, ok := GetLoader("yaml")
	if !ok {
		return nil, fmt.Errorf("no YAML record loader registered")
	}

	file, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}
