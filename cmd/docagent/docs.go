package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/martinemde/docagent/docstore"
)

func createCmd(flags *globalFlags) *cobra.Command {
	var user, title string
	cmd := &cobra.Command{
		Use:   "create [file]",
		Short: "Store a document from a file (or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, store, err := setup(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			var data []byte
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
				if title == "" {
					title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				}
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			doc, err := store.Create(cmd.Context(), docstore.Document{
				OwnerID: user,
				Title:   title,
				Content: string(data),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", defaultUser(), "owner of the document")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	return cmd
}

func listCmd(flags *globalFlags) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, store, err := setup(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := store.List(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tTITLE\tREVISION\tUPDATED\n")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Title, d.Revision, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", defaultUser(), "owner of the documents")
	return cmd
}

func showCmd(flags *globalFlags) *cobra.Command {
	var user string
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print a document with line numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, store, err := setup(flags)
			if err != nil {
				return err
			}
			defer store.Close()
			return printDocument(cmd.Context(), cmd.OutOrStdout(), store, args[0], user, raw)
		},
	}
	cmd.Flags().StringVar(&user, "user", defaultUser(), "owner of the document")
	cmd.Flags().BoolVar(&raw, "raw", false, "print content without line numbers")
	return cmd
}

func printDocument(ctx context.Context, w io.Writer, store docstore.Store, id, user string, raw bool) error {
	content, err := store.ReadContent(ctx, id, user)
	if err != nil {
		return err
	}
	if raw {
		_, err := fmt.Fprintln(w, content)
		return err
	}
	for i, line := range strings.Split(content, "\n") {
		if _, err := fmt.Fprintf(w, "%4d  %s\n", i+1, line); err != nil {
			return err
		}
	}
	return nil
}
