package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

// Report output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const dayLayout = "2006-01-02"

// summary is the machine-readable run report.
type summary struct {
	RunID           string               `json:"run_id" yaml:"run_id"`
	RangeStart      string               `json:"range_start" yaml:"range_start"`
	RangeEnd        string               `json:"range_end" yaml:"range_end"`
	Status          model.RunStatus      `json:"status" yaml:"status"`
	Calls           int                  `json:"calls" yaml:"calls"`
	Leads           int                  `json:"leads" yaml:"leads"`
	Matched         int                  `json:"matched" yaml:"matched"`
	Unmatched       int                  `json:"unmatched" yaml:"unmatched"`
	MatchRate       float64              `json:"match_rate" yaml:"match_rate"`
	ConversionValue float64              `json:"conversion_value" yaml:"conversion_value"`
	Currency        string               `json:"currency" yaml:"currency"`
	Uploads         []model.UploadResult `json:"uploads,omitempty" yaml:"uploads,omitempty"`
	DurationMS      int64                `json:"duration_ms" yaml:"duration_ms"`
}

// FormatReport renders the run outcome in the requested format. Verbose only
// affects the text format.
func FormatReport(o *Outcome, format string, verbose bool) (string, error) {
	switch format {
	case FormatText, "":
		return textReport(o, verbose), nil
	case FormatJSON:
		data, err := json.MarshalIndent(newSummary(o), "", "  ")
		if err != nil {
			return "", eris.Wrap(err, "pipeline: marshal report")
		}
		return string(data) + "\n", nil
	case FormatYAML:
		data, err := yaml.Marshal(newSummary(o))
		if err != nil {
			return "", eris.Wrap(err, "pipeline: marshal report")
		}
		return string(data), nil
	default:
		return "", eris.Errorf("pipeline: unknown report format %q", format)
	}
}

func newSummary(o *Outcome) summary {
	return summary{
		RunID:           o.Run.ID,
		RangeStart:      o.Run.Range.Start.Format(dayLayout),
		RangeEnd:        o.Run.Range.End.Format(dayLayout),
		Status:          o.Run.Status,
		Calls:           o.Run.Calls,
		Leads:           o.Run.Leads,
		Matched:         o.Run.Matched,
		Unmatched:       o.Run.Unmatched,
		MatchRate:       o.Run.MatchRate,
		ConversionValue: o.ConversionValue,
		Currency:        o.Currency,
		Uploads:         o.Run.Uploads,
		DurationMS:      o.Run.Duration.Milliseconds(),
	}
}

func textReport(o *Outcome, verbose bool) string {
	var b strings.Builder
	r := o.Run.Range

	fmt.Fprintf(&b, "Reconciliation %s to %s\n", r.Start.Format(dayLayout), r.End.Format(dayLayout))
	fmt.Fprintf(&b, "  Calls:     %d\n", o.Run.Calls)
	fmt.Fprintf(&b, "  Leads:     %d\n", o.Run.Leads)
	fmt.Fprintf(&b, "  Matched:   %d (%.1f%%)\n", o.Run.Matched, o.Run.MatchRate)
	fmt.Fprintf(&b, "  Unmatched: %d\n", o.Run.Unmatched)

	if verbose {
		writeDetail(&b, o.Reconciliation)
	}

	if o.DryRun() {
		fmt.Fprintf(&b, "\nDry run: would upload %d call conversions worth %.2f %s\n",
			o.Run.Unmatched, float64(o.Run.Unmatched)*o.ConversionValue, o.Currency)
		return b.String()
	}

	if len(o.Run.Uploads) == 0 {
		b.WriteString("\nNothing to upload\n")
		return b.String()
	}

	b.WriteString("\nUploads\n")
	for _, u := range o.Run.Uploads {
		fmt.Fprintf(&b, "  %s: attempted %d, succeeded %d, failed %d\n",
			u.Platform, u.Attempted, u.Succeeded, u.Failed)
		for _, e := range u.Errors {
			if e.CallID == "" {
				fmt.Fprintf(&b, "    - %s: %s\n", orUnknown(e.Code), e.Message)
				continue
			}
			fmt.Fprintf(&b, "    - %s %s %s: %s\n", e.CallID, e.Caller, orUnknown(e.Code), e.Message)
		}
	}
	return b.String()
}

func writeDetail(b *strings.Builder, recon model.ReconciliationResult) {
	if len(recon.Matched) > 0 {
		b.WriteString("\nMatched calls\n")
		for _, m := range recon.Matched {
			fmt.Fprintf(b, "  %s %s -> lead %s (%s, delta %s)\n",
				m.Call.ID, m.Call.Caller, m.Lead.ID, m.Confidence, m.Delta.Round(time.Second))
		}
	}
	if len(recon.Unmatched) > 0 {
		b.WriteString("\nGap calls\n")
		for _, u := range recon.Unmatched {
			fmt.Fprintf(b, "  %s %s at %s (%s)\n",
				u.Call.ID, u.Call.Caller, u.Call.StartTime.Format(time.RFC3339), u.Reason)
		}
	}
}

func orUnknown(code string) string {
	if code == "" {
		return "error"
	}
	return code
}
