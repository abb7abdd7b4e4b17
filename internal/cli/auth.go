package cli

import (
	"fmt"
	"os"
	"strings"

	"recruiterrm/internal/config"
	"recruiterrm/internal/secrets"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store credentials in the system keyring",
	}
	cmd.AddCommand(newAuthLoginCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		username string
		password string
		apiKey   string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the mailbox password and completion API key in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("username") {
				cfg.Auth.Username = username
			}
			if cmd.Flags().Changed("base-url") {
				cfg.Completion.BaseURL = baseURL
			}
			if cfg.Auth.Username == "" {
				return fmt.Errorf("auth.username is required (set --username or %s_AUTH_USERNAME)", config.EnvPrefix)
			}

			if password == "" {
				password, err = promptSecret(cmd, fmt.Sprintf("Password for %s: ", cfg.Auth.Username))
				if err != nil {
					return err
				}
			}
			if apiKey == "" && !cfg.Completion.Bypass {
				apiKey, err = promptSecret(cmd, fmt.Sprintf("API key for %s (empty to skip): ", cfg.Completion.BaseURL))
				if err != nil {
					return err
				}
			}

			store := secrets.NewStore()
			if err := store.SetPassword(cfg.Auth.Username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %s.\n", cfg.Auth.Username)

			if apiKey != "" {
				if err := store.SetAPIKey(cfg.Completion.BaseURL, apiKey); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s.\n", cfg.Completion.BaseURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Mailbox username (defaults to auth.username)")
	cmd.Flags().StringVar(&password, "password", "", "Mailbox password or app password (prompted when omitted)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Completion API key (prompted when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Completion API base URL (defaults to completion.base_url)")

	return cmd
}

func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no TTY available; pass the secret as a flag")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
