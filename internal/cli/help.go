package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor).
				MarginTop(1)

	helpCommandStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#00AAAA")).
				Bold(true)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		// Title and description
		sb.WriteString(helpTitleStyle.Render("Pulsetrace"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Neutron and muon trace-processing pipeline"))
		sb.WriteString("\n")

		// Usage
		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s [flags] <command>", ctx.Model.Name))
		sb.WriteString("\n")

		// Commands section
		commands := getCommands(ctx)
		if len(commands) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Commands:"))
			sb.WriteString("\n")
			for _, cmd := range commands {
				sb.WriteString("  ")
				sb.WriteString(helpCommandStyle.Render(cmd.name))
				if cmd.help != "" {
					sb.WriteString("  ")
					sb.WriteString(cmd.help)
				}
				sb.WriteString("\n")
			}
		}

		// Flags section
		flags := getFlags(ctx)
		if len(flags) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Flags:"))
			sb.WriteString("\n")
			for _, flag := range flags {
				sb.WriteString("  ")
				sb.WriteString(helpFlagStyle.Render(flag.flags))
				if flag.help != "" {
					sb.WriteString("  ")
					sb.WriteString(flag.help)
				}
				if flag.defaultVal != "" {
					sb.WriteString(" ")
					sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
				}
				sb.WriteString("\n")
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

type command struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func getCommands(ctx *kong.Context) []command {
	var commands []command

	for _, child := range ctx.Model.Node.Children {
		if child.Type != kong.CommandNode || child.Hidden {
			continue
		}
		commands = append(commands, command{name: child.Name, help: child.Help})
	}

	return commands
}

func getFlags(ctx *kong.Context) []flag {
	var flags []flag

	// Always include help flag
	flags = append(flags, flag{
		flags: "-h, --help",
		help:  "Show context-sensitive help.",
	})

	// Parse flags from the model
	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" {
			continue // Already added
		}

		flagStr := ""
		if f.Short != 0 {
			flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
		} else {
			flagStr = fmt.Sprintf("--%s", f.Name)
		}

		if !f.IsBool() && f.PlaceHolder != "" {
			flagStr += "=" + strings.ToUpper(f.PlaceHolder)
		}

		flags = append(flags, flag{
			flags:      flagStr,
			help:       f.Help,
			defaultVal: f.FormatPlaceHolder(),
		})
	}

	return flags
}
