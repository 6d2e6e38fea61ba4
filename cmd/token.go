package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/actiongate/internal/apitoken"
	"github.com/ziadkadry99/actiongate/internal/config"
	"github.com/ziadkadry99/actiongate/internal/db"
)

var (
	tokenUser  string
	tokenScope string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint <name>",
	Short: "Mint a new API token",
	Long:  `Mints an API token for the given name. The plaintext token is printed once and cannot be recovered.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openTokenStore()
		if err != nil {
			return err
		}
		defer closeDB()

		plaintext, token, err := store.Mint(context.Background(), args[0], tokenUser, tokenScope, tokenTTL)
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}

		fmt.Printf("Token %s minted for %s (scope %s).\n", token.ID, token.UserID, token.Scope)
		fmt.Printf("Store this now, it will not be shown again:\n\n  %s\n", plaintext)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openTokenStore()
		if err != nil {
			return err
		}
		defer closeDB()

		tokens, err := store.List(context.Background())
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tUSER\tSCOPE\tCREATED\tEXPIRES")
		for _, t := range tokens {
			expires := "never"
			if t.ExpiresAt != nil {
				expires = t.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Name, t.UserID, t.Scope, t.CreatedAt.Format(time.RFC3339), expires)
		}
		return w.Flush()
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openTokenStore()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := store.Revoke(context.Background(), args[0]); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		fmt.Printf("Token %s revoked.\n", args[0])
		return nil
	},
}

func openTokenStore() (*apitoken.Store, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return apitoken.NewStore(database), func() { database.Close() }, nil
}

func init() {
	tokenMintCmd.Flags().StringVar(&tokenUser, "user", "", "user identity the token acts as")
	tokenMintCmd.Flags().StringVar(&tokenScope, "scope", apitoken.ScopeRedeem, "token scope (redeem, issue, admin)")
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (0 for no expiry)")
	tokenMintCmd.MarkFlagRequired("user")

	tokenCmd.AddCommand(tokenMintCmd, tokenListCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
