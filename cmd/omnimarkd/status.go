package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"go.klb.dev/omnimark/internal/grpcservice"
	"go.klb.dev/omnimark/internal/tlsconf"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the daemon is serving",
		Long: `Queries the daemon's gRPC health service and prints the response as JSON.
Exits non-zero unless the daemon reports SERVING.

With no --server the local IPC socket is used.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd.Context(), v) },
	}

	cmd.Flags().String("service", grpcservice.ServiceName, "health service name (empty = whole daemon)")
	addClientFlags(cmd)

	return cmd
}

func runStatus(ctx context.Context, v *viper.Viper) error {
	target := "unix://" + v.GetString("socket")
	token := ""
	creds := insecure.NewCredentials()
	if server := v.GetString("server"); server != "" {
		target = server
		token = v.GetString("token")
		if v.GetBool("tls") {
			c, err := tlsconf.ClientCredentials(tlsPassphrase(token))
			if err != nil {
				return fmt.Errorf("tls credentials: %w", err)
			}
			creds = c
		}
	}

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(grpcservice.BearerCredentials{Token: token, Source: v.GetString("source")}),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: v.GetString("service")})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "%s: %s\n", target, resp.GetStatus())
		return fmt.Errorf("daemon is %s", resp.GetStatus())
	}
	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "%s: %s\n", target, resp.GetStatus())
	return nil
}
