package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/resurrectci/resurrectci/internal/tui"
)

var (
	attachServer  string
	attachProject string
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach a terminal UI to a session",
	Long: `# resurrectci attach

Opens a full-screen terminal attached to a project session on a running
ResurrectCI server. Commands typed here go through the same session the web
IDE uses, so both stay in sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("attach needs an interactive terminal")
		}
		if attachProject == "" {
			return fmt.Errorf("--project is required (owner/repo)")
		}
		return tui.Run(attachServer, attachProject)
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachServer, "server", "http://localhost:8181", "Server base URL")
	attachCmd.Flags().StringVar(&attachProject, "project", "", "Project key (owner/repo)")
	rootCmd.AddCommand(attachCmd)
}
