package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"recruiterrm/internal/journal"

	"github.com/spf13/cobra"
)

func newJournalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "List the replies recorded in the reply journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal.path is not set")
			}

			j, err := journal.Open(cmd.Context(), cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No replies recorded.")
				return nil
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func printEntries(out io.Writer, entries []journal.Entry) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SENT\tTO\tNAME\tCOMPANY\tMESSAGE-ID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.SentAt.Format(time.RFC3339), e.Recipient, e.Name, e.Company, e.MessageID)
	}
	_ = tw.Flush()
}
