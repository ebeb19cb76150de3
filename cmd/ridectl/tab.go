package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/ridewatch/internal/prefs"
)

func (c *cli) tabCmd() *cobra.Command {
	var addr, password string
	cmd := &cobra.Command{
		Use:     "tab",
		Short:   "Read or change the dashboard's stored tab",
		GroupID: "local",
	}
	cmd.PersistentFlags().StringVar(&addr, "redis", os.Getenv("REDIS_ADDR"), "redis address (REDIS_ADDR)")
	cmd.PersistentFlags().StringVar(&password, "redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")

	open := func(ctx context.Context) (prefs.Store, func() error, error) {
		if addr == "" {
			return nil, nil, fmt.Errorf("no preference store: set --redis or REDIS_ADDR")
		}
		rc, err := prefs.NewRedisClient(ctx, addr, password)
		if err != nil {
			return nil, nil, err
		}
		return prefs.NewRedisStore(rc, "ridewatch:"), rc.Close, nil
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := c.context(cmd)
			store, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			tab, err := store.ActiveTab(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, tab)
			return nil
		},
	}

	set := &cobra.Command{
		Use:       "set dashboard|rider|driver",
		Short:     "Store the tab the dashboard restores on startup",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(prefs.TabDashboard), string(prefs.TabRider), string(prefs.TabDriver)},
		RunE: func(cmd *cobra.Command, args []string) error {
			tab, err := prefs.ParseTab(args[0])
			if err != nil {
				return err
			}
			ctx := c.context(cmd)
			store, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := store.SetActiveTab(ctx, tab); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Active tab set to %s\n", tab)
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
