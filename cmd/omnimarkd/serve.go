package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/omnimark/internal/clip"
	"go.klb.dev/omnimark/internal/control"
	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/crypto"
	"go.klb.dev/omnimark/internal/grpcservice"
	"go.klb.dev/omnimark/internal/ipc"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/pending"
	"go.klb.dev/omnimark/internal/shell"
	"go.klb.dev/omnimark/internal/tlsconf"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "omnimarkd [file...]",
		Short: "Native backend for the omnimark desktop shell",
		Long: `omnimarkd runs the clipboard, pending-file and window services the
omnimark desktop shell talks to over a local socket.

Files named on the command line are queued for the UI. If an instance is
already running they are handed to it instead and this process exits.

Config file search order (first found wins):
  /etc/omnimark/omnimark.toml
  $HOME/.config/omnimark/omnimark.toml
  path supplied via --config

All flags can be set via OMNIMARK_<FLAG> env vars or config-file keys.

Precedence (lowest → highest): defaults → config file → OMNIMARK_* env vars → flags`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PreRunE:      func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v, args)
		},
	}

	helper := clip.DefaultHelper()
	f := cmd.Flags()
	f.String("socket", ipc.SocketPath(), "IPC socket path")
	f.String("addr", "", "optional TCP control address, e.g. 127.0.0.1:8753 (empty = disabled)")
	f.String("token", "", "shared secret for the TCP listener (empty = no auth, no encryption)")
	f.Bool("tls", false, "serve the TCP listener over TLS derived from the token")
	f.Int("workers", copier.DefaultWorkers, "clipboard copy workers")
	f.Int("queue-size", copier.DefaultQueueSize, "copy requests held before new ones are rejected")
	f.String("helper", helper.Command, "raw clipboard protocol helper executable")
	f.StringSlice("helper-args", helper.Args, "helper arguments; "+clip.MIMEPlaceholder+" is replaced by the image MIME type")
	f.Duration("helper-wait-delay", clip.DefaultWaitDelay, "how long to wait for helper stdio after it exits")
	f.Bool("no-native", false, "skip the native clipboard and always use the helper")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper, args []string) error {
	setupLogging(v)

	socket := v.GetString("socket")
	// cobra has already consumed flags; keep the argv filter for "-"-prefixed
	// arguments passed after "--".
	paths := pending.FromArgv(append([]string{"omnimarkd"}, args...))

	if ipc.IsRunning(socket) {
		return relay(socket, paths)
	}
	ipcLn, err := ipc.Listen(socket)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		return relay(socket, paths)
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := notify.New()
	store := pending.NewStore(paths)
	sh := shell.New(hub, cancel)

	native := clip.NewNative(v.GetBool("no-native"))
	helper := clip.NewHelper(v.GetString("helper"), v.GetStringSlice("helper-args"), v.GetDuration("helper-wait-delay"))
	cp := copier.New(native, helper,
		copier.NotifierFunc(func(o copier.Outcome) { hub.PublishCopyResult(o.Version, o.Err) }),
		copier.Config{Workers: v.GetInt("workers"), QueueSize: v.GetInt("queue-size")},
	)
	defer cp.Close()

	ctrl := &control.Server{Copier: cp, Pending: store, Events: hub, Shell: sh}
	health := grpcservice.New()

	slog.Info("omnimarkd starting",
		"version", Version,
		"socket", socket,
		"addr", v.GetString("addr"),
		"native", native.Name(),
		"helper", helper.Name(),
		"pending", store.Len(),
	)

	g, gctx := errgroup.WithContext(ctx)

	local, err := newFrontend("ipc", ipcLn, ctrl, health, "")
	if err != nil {
		_ = ipcLn.Close()
		return err
	}
	local.run(g)
	fronts := []*frontend{local}

	if addr := v.GetString("addr"); addr != "" {
		remote, err := listenTCP(addr, v, ctrl, health)
		if err != nil {
			local.shutdown(context.Background())
			_ = g.Wait()
			return err
		}
		remote.run(g)
		fronts = append(fronts, remote)
	}

	health.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		health.Shutdown()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		for _, f := range fronts {
			f.shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}

// listenTCP opens the optional network listener. The line protocol there is
// authenticated and sealed with keys derived from the token.
func listenTCP(addr string, v *viper.Viper, ctrl *control.Server, health *grpcservice.Service) (*frontend, error) {
	token := v.GetString("token")
	key, err := crypto.KeyForToken(token)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if v.GetBool("tls") {
		cfg, err := tlsconf.Server(tlsPassphrase(token))
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, cfg)
	}
	slog.Info("listening", "addr", ln.Addr(), "encrypted", key != nil, "tls", v.GetBool("tls"))
	return newFrontend("tcp", ln, ctrl.WithAuth(token, key), health, token)
}

// relay hands paths to the running instance and brings its window forward.
func relay(socket string, paths []string) error {
	conn, err := ipc.Dial(socket)
	if err != nil {
		return err
	}
	c, err := control.NewClient(conn, "", "relay")
	if err != nil {
		return err
	}
	defer c.Close()

	if len(paths) > 0 {
		if err := c.OpenFiles(paths); err != nil {
			return fmt.Errorf("relay files: %w", err)
		}
	}
	if err := c.Menu(shell.MenuOpenApp); err != nil {
		return fmt.Errorf("raise window: %w", err)
	}
	slog.Info("handed off to running instance", "socket", socket, "paths", paths)
	return nil
}
