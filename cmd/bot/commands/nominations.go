package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/storage"
)

var (
	snapshotPath string
	statusFilter string
)

func nominationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nominations",
		Short: "Inspect the nomination snapshot without starting the bot",
	}
	cmd.PersistentFlags().StringVar(&snapshotPath, "file", "", "snapshot path (default NOMINATIONS_FILE)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List nominations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := storage.ReadSnapshot(snapshotFile())
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), all, statusFilter)
		},
	}
	list.Flags().StringVar(&statusFilter, "status", "", "only show pending, approved or denied")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one nomination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := storage.ReadSnapshot(snapshotFile())
			if err != nil {
				return err
			}
			for _, n := range all {
				if n.ID == args[0] {
					printOne(cmd.OutOrStdout(), n)
					return nil
				}
			}
			return fmt.Errorf("nomination %s: %w", args[0], storage.ErrNotFound)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func snapshotFile() string {
	if snapshotPath != "" {
		return snapshotPath
	}
	return cfg.NominationsFile
}

func printList(w io.Writer, all []domain.Nomination, status string) error {
	switch domain.Status(status) {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusDenied:
	default:
		return fmt.Errorf("unknown status %q", status)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMEDAL\tNOMINATOR\tUSERS\tRESOLVED BY")
	for _, n := range all {
		if status != "" && string(n.Status) != status {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, n.Status, n.Medal, n.Nominator, strings.Join(n.UserIDs, ","), n.ResolvedBy)
	}
	return tw.Flush()
}

func printOne(w io.Writer, n domain.Nomination) {
	fmt.Fprintf(w, "Nomination #%s\n", n.ID)
	fmt.Fprintf(w, "Status:    %s\n", n.Status)
	if n.ResolvedBy != "" {
		fmt.Fprintf(w, "Resolved:  %s\n", n.ResolvedBy)
	}
	fmt.Fprintf(w, "Medal:     %s\n", n.Medal)
	fmt.Fprintf(w, "Nominator: %s\n", n.Nominator)
	fmt.Fprintf(w, "Users:     %s\n", strings.Join(n.Users, " "))
	fmt.Fprintf(w, "User IDs:  %s\n", strings.Join(n.UserIDs, ","))
	if n.Reason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", n.Reason)
	}
}
