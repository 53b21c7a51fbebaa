package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func render(w io.Writer, format string, res Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		return renderYAML(w, res)
	default:
		return renderText(w, res)
	}
}

// renderYAML goes through JSON so keys keep their wire names.
func renderYAML(w io.Writer, res Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func renderText(w io.Writer, res Result) error {
	var b strings.Builder

	if res.Text != "" {
		b.WriteString(headerStyle.Render("Text") + "\n")
		b.WriteString(res.Text)
		if !strings.HasSuffix(res.Text, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if res.Block != "" {
		status := "complete"
		if res.Truncated {
			status = "truncated"
		}
		b.WriteString(headerStyle.Render("Block") + " " + dimStyle.Render("("+status+")") + "\n")
		b.WriteString(dimStyle.Render(strings.TrimSpace(res.Block)) + "\n\n")
	}

	switch {
	case res.Directive != nil:
		label := "directive"
		if res.Repaired {
			label = "directive (repaired)"
		}
		pretty, err := json.MarshalIndent(res.Directive, "", "  ")
		if err != nil {
			return err
		}
		b.WriteString(okStyle.Render("✓ "+label) + "\n")
		fmt.Fprintf(&b, "%s\n", pretty)
		fmt.Fprintf(&b, "%s %d zones, vizState %s\n", dimStyle.Render("•"), len(res.Directive.Zones), res.Directive.VizState)
	case res.Problem != "":
		b.WriteString(warnStyle.Render("⚠ "+res.Problem) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
