package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/omnimark/internal/control"
	"go.klb.dev/omnimark/internal/ipc"
	"go.klb.dev/omnimark/internal/tlsconf"
)

const dialTimeout = 5 * time.Second

func isContainerID(s string) bool {
	if len(s) < 12 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// defaultSource returns a human-readable identifier for this host, sent with
// AUTH so the daemon can log who connected.
func defaultSource() string {
	if v := os.Getenv("OMNIMARK_SOURCE"); v != "" {
		return v
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	if isContainerID(h) {
		return "container-" + h[:8]
	}
	return h
}

// tlsPassphrase is the secret TLS keys are derived from.
func tlsPassphrase(token string) string {
	if token == "" {
		return tlsconf.DefaultPassphrase
	}
	return token
}

// addClientFlags adds the flags every client subcommand shares. With no
// --server the local IPC socket is used and no token is needed.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("server", "", "daemon TCP address (host:port); empty = local IPC socket")
	f.String("socket", ipc.SocketPath(), "IPC socket path")
	f.String("token", "", "shared secret (must match the daemon)")
	f.Bool("tls", false, "use TLS derived from the token on --server")
	f.String("source", defaultSource(), "identifier reported to the daemon")
	addConfigFlag(cmd)
}

// dialDaemon connects to the daemon selected by the client flags.
func dialDaemon(v *viper.Viper) (*control.Client, error) {
	source := v.GetString("source")
	server := v.GetString("server")
	if server == "" {
		conn, err := ipc.Dial(v.GetString("socket"))
		if err != nil {
			return nil, fmt.Errorf("no running omnimarkd: %w", err)
		}
		return control.NewClient(conn, "", source)
	}

	token := v.GetString("token")
	conn, err := net.DialTimeout("tcp", server, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", server, err)
	}
	if v.GetBool("tls") {
		cfg, err := tlsconf.Client(tlsPassphrase(token))
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		conn = tls.Client(conn, cfg)
	}
	return control.NewClient(conn, token, source)
}
