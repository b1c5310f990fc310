package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy [image-file]",
		Short: "Copy an image to the system clipboard through the daemon",
		Long: `Reads an image (PNG, JPEG, GIF, BMP, TIFF or WebP) from the named file or
stdin, asks the daemon to place it on the clipboard and waits for the result.

Results for other requests are ignored: only the one carrying this request's
version counts.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, args []string) error { return runCopy(v, args) },
	}

	f := cmd.Flags()
	f.Uint32("request-version", 0, "version tag for this request (0 = derive from the clock)")
	f.Duration("timeout", 30*time.Second, "how long to wait for the copy result")
	addClientFlags(cmd)

	return cmd
}

func runCopy(v *viper.Viper, args []string) error {
	resolveLogging(false, "auto", "warn")

	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return errors.New("no image data")
	}

	version := v.GetUint32("request-version")
	if version == 0 {
		version = uint32(time.Now().UnixMilli()) | 1
	}

	c, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		res, err := c.CopyAndWait(base64.StdEncoding.EncodeToString(data), version)
		switch {
		case err != nil:
			done <- err
		case !res.Success && res.Error != nil:
			done <- errors.New(*res.Error)
		case !res.Success:
			done <- errors.New("copy failed")
		default:
			done <- nil
		}
	}()

	select {
	case err := <-done:
		if err == nil {
			slog.Debug("image copied", "version", version, "size_bytes", len(data))
		}
		return err
	case <-time.After(v.GetDuration("timeout")):
		return fmt.Errorf("no copy result after %s", v.GetDuration("timeout"))
	}
}
