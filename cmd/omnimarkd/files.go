package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/omnimark/internal/pending"
)

func newPendingCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Take the file paths waiting for the UI",
		Long: `Prints the paths the daemon is holding for the UI, one per line, and
clears them. A second call prints nothing until new paths arrive.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()

			paths, err := c.PendingFiles()
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return json.NewEncoder(os.Stdout).Encode(map[string][]string{"file_paths": paths})
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print a JSON object instead of plain lines")
	addClientFlags(cmd)

	return cmd
}

func newOpenCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "open file...",
		Short: "Hand files to the running UI",
		Long: `Resolves the given paths against the current directory and sends them to
the daemon. A listening UI receives an open-files event; otherwise the paths
wait in the pending store.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.OpenFiles(pending.ResolveAll(args))
		},
	}

	addClientFlags(cmd)

	return cmd
}
