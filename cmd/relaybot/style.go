package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/roelfdiedericks/relaybot/internal/llm"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	catchAllStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	noticeStyle   = lipgloss.NewStyle().Faint(true)
)

const (
	colSet  = 3
	colRole = 4
)

// providerTable renders the catalog with credential status
func providerTable(providers []*llm.Provider, hasCredential func(string) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("NAME", "FAMILY", "CREDENTIAL", "SET", "ROLE")

	for _, p := range providers {
		set := "no"
		if hasCredential(p.Credential) {
			set = "yes"
		}
		role := ""
		if p.CatchAll {
			role = "catch-all"
		}
		t.Row(p.Name, string(p.Family), p.Credential, set, role)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle.Padding(0, 1)
		}
		switch col {
		case colSet:
			if row >= 0 && row < len(providers) && hasCredential(providers[row].Credential) {
				return okStyle.Padding(0, 1)
			}
			return missingStyle.Padding(0, 1)
		case colRole:
			return catchAllStyle.Padding(0, 1)
		}
		return cellStyle
	})
	return t.String()
}
