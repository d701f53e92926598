package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/core/config"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage probe API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Issue a new API key",
	Long: `Issues a key signed with one of the configured HMAC secrets. The key is
printed once; only its HMAC is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with, required when several are configured")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, _ := cmd.Flags().GetString("secret-id")
	secretID, err = pickSecret(secrets, secretID)
	if err != nil {
		return err
	}

	env, err := openStore(nil, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	key, err := auth.IssueAPIKey(cmd.Context(), env.queries, secretID, secrets[secretID], args[0])
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id:   %s\nname: %s\nkey:  %s\n", key.ID, key.Name, key.Key)
	return nil
}

func pickSecret(secrets map[string][]byte, want string) (string, error) {
	if len(secrets) == 0 {
		return "", fmt.Errorf("no HMAC secrets configured (set DK_HMAC_SECRET environment variable)")
	}
	if want != "" {
		if _, ok := secrets[want]; !ok {
			return "", fmt.Errorf("secret id %q not configured", want)
		}
		return want, nil
	}
	if len(secrets) > 1 {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return "", fmt.Errorf("several HMAC secrets configured, pick one with --secret-id (%s)", strings.Join(ids, ", "))
	}
	for id := range secrets {
		return id, nil
	}
	return "", nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	env, err := openStore(nil, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := auth.RevokeAPIKey(cmd.Context(), env.queries, args[0]); err != nil {
		return fmt.Errorf("failed to revoke key %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
