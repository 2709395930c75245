package main

import (
	"strings"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/tool"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type tableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func newTableFormatter() *tableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &tableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *tableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *tableFormatter) FormatModels(models config.ModelsConfig) string {
	if len(models.Registry) == 0 {
		return "No models configured"
	}

	t := f.newTable("ID", "Provider", "Upstream", "API Key", "Role")
	for _, entry := range models.Registry {
		var roles []string
		if entry.Name == models.Default {
			roles = append(roles, "default")
		}
		if entry.Name == models.Fallback {
			roles = append(roles, "fallback")
		}
		key := "missing"
		if entry.APIKey != "" {
			key = "set"
		}
		t.Row(entry.Name, entry.Provider, entry.Model, key, strings.Join(roles, ", "))
	}
	return t.String()
}

func (f *tableFormatter) FormatTools(descriptors []tool.ToolDescriptor) string {
	if len(descriptors) == 0 {
		return "No tools enabled"
	}

	t := f.newTable("Name", "Description", "Capabilities")
	for _, d := range descriptors {
		t.Row(
			d.Definition.Name,
			truncateString(d.Definition.Description, 60),
			strings.Join(d.Metadata.Capabilities, ", "),
		)
	}
	return t.String()
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
