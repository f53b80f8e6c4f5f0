package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "resurrectci",
	Short: "ResurrectCI - terminal sessions for the web IDE",
	Long: `# ResurrectCI

**Terminal and session service for the ResurrectCI web IDE.**

## Features

- **Per-project terminal sessions** with transcript, history, and built-ins
- **Execution backends** with automatic fallback: remote session, remote
  stateless, local sandbox container, simulated offline mode
- **Dev server detection** with one-click stop
- **Pull-request flow** for landing edits made in the IDE

## Getting Started

Run **resurrectci serve** to start the API, then **resurrectci attach** to
open a terminal session from your own shell.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

// renderMarkdownHelp renders command help through glamour, falling back to
// cobra's default output when the terminal cannot take it.
func renderMarkdownHelp(cmd *cobra.Command) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString("# " + cmd.Short + "\n\n")
	}

	help.WriteString("## Usage\n\n```bash\n")
	help.WriteString(cmd.UseLine())
	help.WriteString("\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		help.WriteString("## Available Commands\n\n")
		for _, subCmd := range cmd.Commands() {
			if subCmd.IsAvailableCommand() {
				help.WriteString(fmt.Sprintf("- **%s** - %s\n", subCmd.Name(), subCmd.Short))
			}
		}
		help.WriteString("\n")
	}

	if cmd.HasAvailableFlags() {
		if flagUsages := cmd.Flags().FlagUsages(); flagUsages != "" {
			help.WriteString("## Flags\n\n```\n")
			help.WriteString(flagUsages)
			help.WriteString("```\n\n")
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(cmd.Long + "\n" + cmd.UsageString())
		return
	}

	rendered, err := renderer.Render(help.String())
	if err != nil {
		fmt.Print(cmd.Long + "\n" + cmd.UsageString())
		return
	}

	fmt.Print(rendered)
}
