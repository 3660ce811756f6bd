package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var e model.Entry

	cmd := &cobra.Command{
		Use:   "add <list> <artist> <title>",
		Short: "Append an album to a list",
		Args:  cobra.ExactArgs(3),
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
			e.Artist = args[1]
			e.Title = args[2]
			if err := eng.pipeline.Add(listID, e); err != nil {
				return err
			}
			eng.pipeline.Flush(listID)
			fmt.Fprintf(cmd.OutOrStdout(), "added %s — %s\n", e.Artist, e.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&e.ReleaseDate, "date", "", "Release date")
	cmd.Flags().StringVar(&e.Country, "country", "", "Country")
	cmd.Flags().StringVar(&e.Genres, "genres", "", "Genres")
	cmd.Flags().StringVar(&e.Comment, "comment", "", "Comment")
	cmd.Flags().StringVar(&e.TrackPick, "track", "", "Track pick")
	cmd.Flags().StringVar(&e.CoverURL, "cover", "", "Cover URL")
	return cmd
}

func newRmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <list> <position>",
		Short: "Remove the entry at a 1-based position",
		Args:  cobra.ExactArgs(2),
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
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position must be a number: %q", args[1])
			}
			id, err := entryAt(eng, listID, pos)
			if err != nil {
				return err
			}
			if err := eng.pipeline.Remove(listID, id); err != nil {
				return err
			}
			eng.pipeline.Flush(listID)
			fmt.Fprintf(cmd.OutOrStdout(), "removed entry %d\n", pos)
			return nil
		},
	}
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <list> <position> <field> <value>",
		Short: "Set one field of the entry at a 1-based position",
		Long: `Set one field of an entry. Fields: artist, title, releaseDate,
country, genres, comment, trackPick, coverUrl.`,
		Args: cobra.ExactArgs(4),
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
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position must be a number: %q", args[1])
			}
			id, err := entryAt(eng, listID, pos)
			if err != nil {
				return err
			}
			if err := eng.pipeline.EditField(listID, id, args[2], args[3]); err != nil {
				return err
			}
			eng.pipeline.Flush(listID)
			fmt.Fprintf(cmd.OutOrStdout(), "set %s on entry %d\n", args[2], pos)
			return nil
		},
	}
}

func newMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "move <list> <from> <to>",
		Aliases: []string{"reorder"},
		Short:   "Move an entry between 1-based positions",
		Args:    cobra.ExactArgs(3),
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
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("from must be a number: %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("to must be a number: %q", args[2])
			}
			if err := eng.pipeline.Reorder(listID, from-1, to-1); err != nil {
				return err
			}
			eng.pipeline.Flush(listID)
			fmt.Fprintf(cmd.OutOrStdout(), "moved %d -> %d\n", from, to)
			return nil
		},
	}
}
