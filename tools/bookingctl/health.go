package main

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/slotwise/libs/grpcx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func healthCmd(v *viper.Viper) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the admin gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			conn, err := grpcx.Dial(cfg.AdminAddr, grpcx.DialOptions{})
			if err != nil {
				return fmt.Errorf("dial %s: %w", cfg.AdminAddr, err)
			}
			defer conn.Close()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", cfg.AdminAddr, resp.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "health service name (empty for overall)")
	return cmd
}
