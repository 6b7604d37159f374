package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/rag-be/utils"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		token, err := utils.GenerateUserToken(tokenUser, cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id to embed in the token")
	tokenCmd.MarkFlagRequired("user")
}
