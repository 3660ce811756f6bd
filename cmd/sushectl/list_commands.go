package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magnusoverli/sushe-online-sub002/internal/api"
	"github.com/magnusoverli/sushe-online-sub002/internal/identity"
)

func newListsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show all your lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			lists, err := eng.api.Lists(cmd.Context())
			if err != nil {
				return err
			}
			if len(lists) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no lists")
				return nil
			}
			for _, l := range lists {
				line := l.Name
				if l.Year != nil {
					line = fmt.Sprintf("%s (%d)", line, *l.Year)
				}
				if l.IsMain {
					line += " [main]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", l.ID, line)
			}
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list>",
		Short: "Print a list's entries in rank order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			listID, err := eng.loadList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, _ := eng.store.Items(listID)
			for i, e := range items {
				extra := ""
				if e.ReleaseDate != "" {
					extra = " (" + e.ReleaseDate + ")"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s — %s%s\n", i+1, e.Artist, e.Title, extra)
			}
			return nil
		},
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var year int
	var group string
	var main bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			req := api.CreateListRequest{Name: strings.TrimSpace(args[0]), IsMain: main}
			if year != 0 {
				req.Year = &year
			}
			if group != "" {
				req.GroupID = &group
			}
			l, err := eng.api.CreateList(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s  %s\n", l.ID, l.Name)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "List year")
	cmd.Flags().StringVar(&group, "group", "", "Group id")
	cmd.Flags().BoolVar(&main, "main", false, "Mark as the main list for its year")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list>",
		Short: "Delete a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			listID, err := eng.loadList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := eng.api.DeleteList(cmd.Context(), listID); err != nil {
				return err
			}
			eng.store.Delete(listID)
			eng.snaps.Clear(listID)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", listID)
			return nil
		},
	}
}

// entryAt resolves a 1-based position to the entry's identity. The
// position is captured as a ref and re-resolved so a concurrent reorder
// between load and act still lands on the same entry.
func entryAt(eng *engine, listID string, pos int) (string, error) {
	items, ok := eng.store.Items(listID)
	if !ok {
		return "", fmt.Errorf("list %s not loaded", listID)
	}
	ref, ok := identity.Capture(listID, items, pos-1)
	if !ok {
		return "", fmt.Errorf("position %d out of range (list has %d entries)", pos, len(items))
	}
	current, _ := eng.store.Items(listID)
	if _, ok := ref.Resolve(current); !ok {
		return "", fmt.Errorf("entry %d no longer exists", pos)
	}
	return ref.Identity, nil
}
