// Command bookingctl is the maintenance CLI for booking-service: schema
// migrations, slot lookups and bookings against a running instance, and an
// admin health check.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return readConfigFile(v)
		},
	}
	bindFlags(root, v)

	root.AddCommand(migrateCmd(v))
	root.AddCommand(slotsCmd(v))
	root.AddCommand(bookCmd(v))
	root.AddCommand(healthCmd(v))
	return root
}
