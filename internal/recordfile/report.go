package recordfile

import (
	"io"

	"github.com/ZanzyTHEbar/calcfield"
	"gopkg.in/yaml.v3"
)

// Report is the printable result of calculating the records of a file.
type Report struct {
	Records []RecordReport `yaml:"records"`
}

// RecordReport holds one record's values and blanks. Blanked fields map to
// their error descriptor; Error is set when the record failed as a whole.
type RecordReport struct {
	ID     string            `yaml:"id"`
	Values map[string]string `yaml:"values,omitempty"`
	Blanks map[string]string `yaml:"blanks,omitempty"`
	Error  string            `yaml:"error,omitempty"`
}

// NewReport converts batch outcomes, keeping their order.
func NewReport(outcomes []calcfield.RecordOutcome) Report {
	report := Report{Records: make([]RecordReport, 0, len(outcomes))}
	for _, o := range outcomes {
		rr := RecordReport{ID: o.RecordID}
		if o.Err != nil {
			rr.Error = o.Err.Error()
			report.Records = append(report.Records, rr)
			continue
		}
		for id, res := range o.Outcome {
			if res.Error != nil {
				if rr.Blanks == nil {
					rr.Blanks = make(map[string]string)
				}
				rr.Blanks[string(id)] = res.Error.String()
				continue
			}
			if rr.Values == nil {
				rr.Values = make(map[string]string)
			}
			rr.Values[string(id)] = calcfield.FormatNumber(res.Value)
		}
		report.Records = append(report.Records, rr)
	}
	return report
}

// Encode writes the report as YAML. Map keys are emitted sorted.
func (r Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
