package cli

import (
	"fmt"

	"recruiterrm/internal/config"
	"recruiterrm/internal/imap"

	"github.com/spf13/cobra"
)

func newMailboxesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailboxes",
		Short: "List mailboxes and check the configured folders exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.ValidateIMAP(cfg); err != nil {
				return err
			}

			mailboxes, err := imap.NewService().ListMailboxes(cfg)
			if err != nil {
				return err
			}

			roles := folderRoles(cfg)
			found := map[string]bool{}
			for _, name := range mailboxes {
				found[name] = true
				if role, ok := roles[name]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s)\n", name, role)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			for name, role := range roles {
				if !found[name] {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s folder %q does not exist\n", role, name)
				}
			}
			return nil
		},
	}
	cmd.AddCommand(newMailboxesCreateCmd())
	return cmd
}

func newMailboxesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a mailbox, e.g. the done folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.ValidateIMAP(cfg); err != nil {
				return err
			}

			if err := imap.NewService().CreateMailbox(cfg, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Mailbox created.")
			return nil
		},
	}
	return cmd
}

func folderRoles(cfg config.Config) map[string]string {
	roles := map[string]string{}
	if cfg.Mailbox.RecruiterFolder != "" {
		roles[cfg.Mailbox.RecruiterFolder] = "recruiter"
	}
	if cfg.Mailbox.DoneFolder != "" {
		roles[cfg.Mailbox.DoneFolder] = "done"
	}
	if cfg.Mailbox.SentFolder != "" {
		roles[cfg.Mailbox.SentFolder] = "sent"
	}
	return roles
}
