package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recruiterrm",
		Short: "Reply to recruiter emails with a courtesy message and archive them",
		Long: "recruiterrm reads the recruiter folder over IMAP, asks a completion API for each\n" +
			"recruiter's first name and company, sends a courtesy reply over SMTP, keeps a copy\n" +
			"in the Sent folder and moves the original to the done folder.\n\n" +
			"Configuration comes from ~/.config/recruiterrm/config.yaml, a .env file and\n" +
			"RECRUITERRM_* environment variables. Dry run is on unless RECRUITERRM_RUN_DRY_RUN=false.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponder(cmd)
		},
	}

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMailboxesCmd())
	cmd.AddCommand(newJournalCmd())

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
