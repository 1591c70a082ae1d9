package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	bannerLeafStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerStemStyle    = lipgloss.NewStyle().Foreground(colorPrimaryDark)
	bannerSoilStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryLight).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func renderBanner() string {
	leaf := bannerLeafStyle.Render
	stem := bannerStemStyle.Render("|")
	soil := bannerSoilStyle.Render(strings.Repeat("~", 11))

	lines := []string{
		"      " + leaf("\\") + " " + leaf("/"),
		"       " + stem + "     " + bannerTitleStyle.Render("SPROUT"),
		"       " + stem,
		"  " + soil,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("  a little practice, every day")
	ver := bannerVersionStyle.Render("  " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}

// runRoot shows the banner above the help text on a terminal.
func runRoot(cmd *cobra.Command, args []string) error {
	if isTTY() {
		fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return cmd.Help()
}
