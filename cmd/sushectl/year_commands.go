package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newYearCommand(ctx *commandContext) *cobra.Command {
	yearCmd := &cobra.Command{
		Use:   "year",
		Short: "Lock, unlock and inspect list years",
	}

	parseYear := func(arg string) (int, error) {
		year, err := strconv.Atoi(arg)
		if err != nil || year < 1000 || year > 9999 {
			return 0, fmt.Errorf("year must be a four-digit number: %q", arg)
		}
		return year, nil
	}

	yearCmd.AddCommand(&cobra.Command{
		Use:   "lock <year>",
		Short: "Freeze every list of a year against edits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			if err := eng.api.LockYear(cmd.Context(), year); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locked %d\n", year)
			return nil
		},
	})

	yearCmd.AddCommand(&cobra.Command{
		Use:   "unlock <year>",
		Short: "Remove a year's edit lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			if err := eng.api.UnlockYear(cmd.Context(), year); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %d\n", year)
			return nil
		},
	})

	yearCmd.AddCommand(&cobra.Command{
		Use:   "stats <year>",
		Short: "Show the aggregate for your main list of a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer ctx.close()

			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			stats, err := eng.api.GetYearStats(cmd.Context(), year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %d entries, %d distinct artists (computed %s)\n",
				stats.Year, stats.EntryCount, stats.ArtistCount, stats.ComputedAt.Format("2006-01-02 15:04"))
			return nil
		},
	})

	return yearCmd
}
