package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resurrectci/resurrectci/internal/config"
	"github.com/resurrectci/resurrectci/internal/middleware"
)

var tokenDuration time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API access token",
	Long: `# resurrectci token

Prints a signed bearer token for the API. Requires ` + "`auth_secret`" + ` to
be configured; without one the API runs open and no token is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := middleware.GenerateToken(config.Runtime.AuthSecret, "cli", tokenDuration)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenDuration, "duration", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
