package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDocumentsCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage ingested documents",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List ingested documents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				docs, err := env.client.Documents(cmd.Context())
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					fmt.Fprintln(env.stdout, "No documents.")
					return nil
				}
				tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSOURCE\tMODE")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Title, d.Source, d.Mode)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print a document with its text",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := env.client.Document(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(env.stdout, "ID:     %s\n", d.ID)
				fmt.Fprintf(env.stdout, "Title:  %s\n", d.Title)
				fmt.Fprintf(env.stdout, "Source: %s\n", d.Source)
				if d.Mode != "" {
					fmt.Fprintf(env.stdout, "Mode:   %s\n", d.Mode)
				}
				for _, k := range slices.Sorted(maps.Keys(d.Meta)) {
					fmt.Fprintf(env.stdout, "%s: %v\n", k, d.Meta[k])
				}
				if d.Text != "" {
					fmt.Fprintln(env.stdout)
					fmt.Fprintln(env.stdout, d.Text)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "delete ID...",
			Aliases: []string{"rm"},
			Short:   "Delete documents and their chunks",
			Args:    cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, id := range args {
					if err := env.client.DeleteDocument(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(env.stdout, "Deleted %s\n", id)
				}
				return nil
			},
		},
	)
	return cmd
}
