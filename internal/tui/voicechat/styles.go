// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     voicechat
// Description: Styles for the voice chat TUI
// Author:      Mike Stoffels
// Created:     2026-10-04
// License:     MIT
// ============================================================================

package voicechat

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette, field green on slate
var (
	ColorPrimary   = lipgloss.Color("#16A34A") // Green 600
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorAccent    = lipgloss.Color("#F59E0B") // Amber
	ColorSuccess   = lipgloss.Color("#10B981") // Emerald
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorDimmed    = lipgloss.Color("#374151") // Dark Gray

	ColorBgPanel     = lipgloss.Color("#1E293B") // Slate 800
	ColorBgSelected  = lipgloss.Color("#14532D") // Green 900
	ColorBgUser      = lipgloss.Color("#1E3A5F")
	ColorBgAssistant = lipgloss.Color("#1E293B")

	ColorText      = lipgloss.Color("#F8FAFC") // Slate 50
	ColorTextMuted = lipgloss.Color("#94A3B8") // Slate 400
	ColorTextDim   = lipgloss.Color("#64748B") // Slate 500
)

var (
	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	TitlePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 2)
)

// Chat bubbles
var (
	UserMessageStyle = lipgloss.NewStyle().
				Foreground(ColorText).
				Background(ColorBgUser).
				Padding(0, 2).
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(ColorSecondary)

	AssistantMessageStyle = lipgloss.NewStyle().
				Foreground(ColorText).
				Background(ColorBgAssistant).
				Padding(0, 2).
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(ColorDimmed)

	OriginalTextStyle = lipgloss.NewStyle().
				Foreground(ColorTextDim).
				Italic(true).
				Padding(0, 2)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	RoleLabelUserStyle = lipgloss.NewStyle().
				Foreground(ColorSecondary).
				Bold(true)

	RoleLabelAssistantStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)
)

// Panels and input
var (
	ChatPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed).
			Padding(0, 1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed).
			Padding(0, 1)

	FocusedInputStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(0, 1)

	PickerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorAccent).
			Background(ColorBgPanel).
			Foreground(ColorText).
			Padding(1, 2)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorText).
				Background(ColorBgSelected).
				Bold(true).
				Padding(0, 1)
)

// Status and help
var (
	StatusBarStyle = lipgloss.NewStyle().
			Background(ColorBgPanel).
			Foreground(ColorText).
			Padding(0, 1)

	StatusActiveStyle = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)

	StatusIdleStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)
)

// Logo
const Logo = "🌾 KrishiSaathi"

// RenderKeyHint renders a keyboard shortcut hint
func RenderKeyHint(key, description string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(description)
}
