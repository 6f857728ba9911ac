package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newConversationsCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List stored conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, closeCtrl, err := env.openController(env.log)
			if err != nil {
				return err
			}
			defer closeCtrl()

			convs := ctrl.Conversations()
			if len(convs) == 0 {
				fmt.Fprintln(env.stdout, "No conversations.")
				return nil
			}
			now := env.now()
			tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tTITLE\tMESSAGES\tCREATED")
			for _, c := range convs {
				marker := ""
				if c.ID == ctrl.ActiveID() {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					marker, c.ID, c.Title, len(c.Messages),
					humanize.RelTime(c.CreatedAt, now, "ago", "from now"))
			}
			return tw.Flush()
		},
	}
}
