package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/db"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens for the chat server",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Issue a new API token",
	Long:  `Issues a token bound to --user. The plaintext is printed once and only its hash is stored.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		return withTokenStore(func(store *auth.TokenStore) error {
			plaintext, tok, err := store.Create(cmd.Context(), args[0], userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Created token %s for user %s\n", tok.ID, tok.UserID)
			if tok.ExpiresAt != nil {
				fmt.Fprintf(os.Stderr, "Expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Println(plaintext)
			return nil
		})
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued API tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokenStore(func(store *auth.TokenStore) error {
			tokens, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				fmt.Println("No tokens.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUSER\tCREATED\tEXPIRES\tLAST USED")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Name, t.UserID, t.CreatedAt.Format(time.DateTime), formatOptionalTime(t.ExpiresAt), formatOptionalTime(t.LastUsed))
			}
			return w.Flush()
		})
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke [id]",
	Short: "Revoke an API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokenStore(func(store *auth.TokenStore) error {
			if err := store.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Revoked token %s\n", args[0])
			return nil
		})
	},
}

func init() {
	tokenCreateCmd.Flags().String("user", "", "user ID the token authenticates as (required)")
	tokenCreateCmd.Flags().Duration("ttl", 0, "token lifetime, e.g. 720h (default never expires)")
	_ = tokenCreateCmd.MarkFlagRequired("user")

	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// withTokenStore opens the configured database for the duration of fn.
func withTokenStore(fn func(*auth.TokenStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	return fn(auth.NewTokenStore(database))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateTime)
}
