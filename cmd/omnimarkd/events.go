package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/omnimark/internal/shell"
)

func newEventsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream daemon events as JSON lines",
		Long: `Subscribes to the daemon and prints every event (copy results, relayed
file opens, window requests) as one JSON object per line until interrupted.

Events published while nothing is subscribed are not replayed. Watching
does not claim relayed file opens; they still wait for the UI.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dialDaemon(v)
			if err != nil {
				return err
			}
			go func() {
				<-cmd.Context().Done()
				_ = c.Close()
			}()
			if err := c.Monitor(); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for {
				msg, err := c.Next()
				if err != nil {
					if cmd.Context().Err() != nil || errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				if err := enc.Encode(struct {
					Event   string          `json:"event"`
					Payload json.RawMessage `json:"payload,omitempty"`
				}{msg.Event, msg.Payload}); err != nil {
					return err
				}
			}
		},
	}

	addClientFlags(cmd)

	return cmd
}

func newWindowCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:       "window action",
		Short:     "Show, hide, focus or toggle the UI window",
		ValidArgs: []string{shell.ActionShow, shell.ActionHide, shell.ActionFocus, shell.ActionUnminimize, shell.ActionToggle},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		PreRunE:   func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Window(args[0])
		},
	}

	addClientFlags(cmd)

	return cmd
}

func newMenuCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:       "menu item",
		Short:     "Trigger a tray menu item",
		ValidArgs: []string{shell.MenuOpenApp, shell.MenuOpenFile, shell.MenuToggle, shell.MenuQuit},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		PreRunE:   func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Menu(args[0])
		},
	}

	addClientFlags(cmd)

	return cmd
}
