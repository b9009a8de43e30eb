package main

import "github.com/charmbracelet/lipgloss"

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle = lipgloss.NewStyle().Bold(true)

	pushArrow = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("→")
	pullArrow = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Render("←")
)

func renderPass(s string) string { return passStyle.Render(s) }
func renderWarn(s string) string { return warnStyle.Render(s) }
func renderErr(s string) string  { return errStyle.Render(s) }
func renderDim(s string) string  { return dimStyle.Render(s) }
