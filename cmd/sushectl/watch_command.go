package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <list>",
		Short: "Follow a list and print it after every remote change",
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

			printList := func(id string) {
				if _, ok := eng.store.Get(id); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "list %s was deleted\n", id)
					return
				}
				items, _ := eng.store.Items(id)
				fmt.Fprintf(cmd.OutOrStdout(), "--- %d entries ---\n", len(items))
				for i, e := range items {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s — %s\n", i+1, e.Artist, e.Title)
				}
			}

			// Rewire the push channel with our change hook; the engine's
			// default channel has no renderer attached.
			channel := eng.pushWithOnChange(printList)
			if err := channel.Subscribe(cmd.Context(), listID); err != nil {
				return err
			}
			defer channel.Unsubscribe()

			printList(listID)
			fmt.Fprintln(cmd.OutOrStdout(), "watching; ctrl-c to stop")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}
