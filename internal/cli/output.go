package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"relctl/internal/color"
	"relctl/internal/prereq"
	"relctl/internal/release"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	case "":
		return OutputFormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected table, json or yaml", s)
}

// Printer renders records and prerequisite reports.
type Printer struct {
	Out    io.Writer
	Format OutputFormat
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, format OutputFormat) *Printer {
	return &Printer{Out: out, Format: format}
}

// Record prints a single release record.
func (p *Printer) Record(rec *release.Record) error {
	if p.Format != OutputFormatTable {
		return p.structured(rec)
	}

	t := p.newTable()
	t.AppendRow(table.Row{header("Release"), rec.ID})
	t.AppendRow(table.Row{header("Namespace"), rec.Namespace})
	t.AppendRow(table.Row{header("Environment"), rec.Environment.String()})
	t.AppendRow(table.Row{header("State"), color.State(rec.State)})
	if rec.Terminal() {
		t.AppendRow(table.Row{header("Outcome"), color.Outcome(rec.Outcome)})
	}
	t.AppendRow(table.Row{header("Started"), formatTime(rec.StartedAt)})
	if !rec.FinishedAt.IsZero() {
		t.AppendRow(table.Row{header("Duration"), rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second).String()})
	}
	if rec.PreviousGoodID != "" {
		t.AppendRow(table.Row{header("Previous"), rec.PreviousGoodID})
	}
	if rec.ErrorKind != "" {
		t.AppendRow(table.Row{header("Error"), fmt.Sprintf("%s: %s", rec.ErrorKind, rec.Error)})
	}
	if rec.RollbackError != "" {
		t.AppendRow(table.Row{header("Rollback"), color.ErrorStyle.Render(rec.RollbackError)})
	}
	t.Render()

	services := p.newTable()
	services.AppendHeader(table.Row{header("Service"), header("Image"), header("Replicas"), header("Health")})
	for _, svc := range rec.Spec.DependencyOrder {
		hc := rec.Spec.HealthChecks[svc]
		check := text.FgHiBlack.Sprint("-")
		if hc.Path != "" {
			check = hc.Path
		}
		services.AppendRow(table.Row{svc, rec.Spec.ImageRefs[svc].String(), rec.Spec.Replicas[svc], check})
	}
	services.Render()
	return nil
}

// Records prints a release history, newest first.
func (p *Printer) Records(records []release.Record) error {
	if p.Format != OutputFormatTable {
		if records == nil {
			records = []release.Record{}
		}
		return p.structured(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(p.Out, text.FgYellow.Sprint("No releases found"))
		return nil
	}

	sorted := append([]release.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	t := p.newTable()
	t.AppendHeader(table.Row{header("ID"), header("Started"), header("State"), header("Outcome"), header("Images"), header("Error")})
	for _, rec := range sorted {
		outcome := text.FgHiBlack.Sprint("-")
		if rec.Terminal() {
			outcome = color.Outcome(rec.Outcome)
		}
		errText := ""
		if rec.ErrorKind != "" {
			errText = string(rec.ErrorKind)
		}
		t.AppendRow(table.Row{rec.ID, formatTime(rec.StartedAt), color.State(rec.State), outcome, images(rec.Spec), errText})
	}
	t.AppendFooter(table.Row{"", "", "", "", text.FgHiBlue.Sprint("Total:"), len(sorted)})
	t.Render()
	return nil
}

// prerequisiteView is the structured form of a prerequisite report.
type prerequisiteView struct {
	Name      string `json:"name" yaml:"name"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Wanted    string `json:"wanted" yaml:"wanted"`
	Installed bool   `json:"installed" yaml:"installed"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Satisfied bool   `json:"satisfied" yaml:"satisfied"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Prerequisites prints the observed state of each prerequisite.
func (p *Printer) Prerequisites(statuses []prereq.Status) error {
	views := make([]prerequisiteView, 0, len(statuses))
	for _, st := range statuses {
		v := prerequisiteView{
			Name:      st.Prerequisite.Name,
			Namespace: st.Prerequisite.Namespace,
			Wanted:    st.Prerequisite.Version,
			Installed: st.Presence.Installed,
			Version:   st.Presence.Version,
			Satisfied: st.Satisfied,
		}
		if st.Err != nil {
			v.Error = st.Err.Error()
		}
		views = append(views, v)
	}
	if p.Format != OutputFormatTable {
		return p.structured(views)
	}

	t := p.newTable()
	t.AppendHeader(table.Row{header("Prerequisite"), header("Namespace"), header("Wanted"), header("Installed"), header("Status")})
	for _, v := range views {
		installed := text.FgHiBlack.Sprint("-")
		if v.Installed {
			installed = v.Version
		}
		var status string
		switch {
		case v.Error != "":
			status = color.ErrorStyle.Render(v.Error)
		case v.Satisfied:
			status = color.Present(true, "satisfied")
		case v.Installed:
			status = color.WarningStyle.Render("↑ upgrade needed")
		default:
			status = color.Present(false, "missing")
		}
		t.AppendRow(table.Row{v.Name, v.Namespace, v.Wanted, installed, status})
	}
	t.Render()
	return nil
}

// Installed prints what Ensure did for each prerequisite.
func (p *Printer) Installed(results []prereq.Installed) error {
	if p.Format != OutputFormatTable {
		if results == nil {
			results = []prereq.Installed{}
		}
		return p.structured(results)
	}

	t := p.newTable()
	t.AppendHeader(table.Row{header("Prerequisite"), header("Version"), header("Action")})
	for _, r := range results {
		action := color.MutedStyle.Render(string(r.Action))
		if r.Action == prereq.ActionInstalled {
			action = color.SuccessStyle.Render(string(r.Action))
		}
		t.AppendRow(table.Row{r.Name, r.Version, action})
	}
	t.Render()
	return nil
}

func (p *Printer) structured(v any) error {
	switch p.Format {
	case OutputFormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = p.Out.Write(data)
		return err
	default:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(s string) string {
	return text.FgHiCyan.Sprint(strings.ToUpper(s))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func images(spec release.Spec) string {
	parts := make([]string, 0, len(spec.DependencyOrder))
	for _, svc := range spec.DependencyOrder {
		parts = append(parts, fmt.Sprintf("%s=%s", svc, spec.ImageRefs[svc].Tag))
	}
	return strings.Join(parts, " ")
}

// ClusterInfo summarizes the cluster a command is connected to.
type ClusterInfo struct {
	Context       string `json:"context" yaml:"context"`
	ServerVersion string `json:"serverVersion" yaml:"serverVersion"`
	ReadyNodes    int    `json:"readyNodes" yaml:"readyNodes"`
	TotalNodes    int    `json:"totalNodes" yaml:"totalNodes"`
}

// Cluster prints connection details of a cluster.
func (p *Printer) Cluster(info ClusterInfo) error {
	if p.Format != OutputFormatTable {
		return p.structured(info)
	}

	nodes := fmt.Sprintf("%d/%d ready", info.ReadyNodes, info.TotalNodes)
	nodes = color.Present(info.TotalNodes > 0 && info.ReadyNodes == info.TotalNodes, nodes)

	t := p.newTable()
	t.AppendRow(table.Row{header("Context"), info.Context})
	t.AppendRow(table.Row{header("Server"), info.ServerVersion})
	t.AppendRow(table.Row{header("Nodes"), nodes})
	t.Render()
	return nil
}
