package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/models"
)

func (c *cli) tripCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trip",
		Short:   "Start, pause, resume and end trips",
		GroupID: "backend",
	}

	start := &cobra.Command{
		Use:   "start RIDE_ID",
		Short: "Start the trip for an accepted ride",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "ride")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			t, err := cl.StartTrip(c.context(cmd), id)
			if err != nil {
				return err
			}
			return c.printTrip("started", t)
		},
	}

	var end models.EndTripRequest
	endCmd := &cobra.Command{
		Use:   "end TRIP_ID",
		Short: "End a trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "trip")
			if err != nil {
				return err
			}
			if end.DistanceKm < 0 {
				return fmt.Errorf("--distance must not be negative")
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			t, err := cl.EndTrip(c.context(cmd), id, end)
			if err != nil {
				return err
			}
			return c.printTrip("completed", t)
		},
	}
	endCmd.Flags().Float64Var(&end.DistanceKm, "distance", 0, "distance travelled in km")
	endCmd.Flags().Float64Var(&end.EndLatitude, "lat", 0, "drop-off latitude")
	endCmd.Flags().Float64Var(&end.EndLongitude, "lon", 0, "drop-off longitude")

	byTrip := func(use, short, verb string, call func(*backend.Client, context.Context, int64) (models.Trip, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " TRIP_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "trip")
				if err != nil {
					return err
				}
				cl, err := c.client()
				if err != nil {
					return err
				}
				t, err := call(cl, c.context(cmd), id)
				if err != nil {
					return err
				}
				return c.printTrip(verb, t)
			},
		}
	}

	cmd.AddCommand(start, endCmd,
		byTrip("pause", "Pause a trip", "paused", (*backend.Client).PauseTrip),
		byTrip("resume", "Resume a paused trip", "resumed", (*backend.Client).ResumeTrip),
		byTrip("get", "Show a trip", "", (*backend.Client).GetTrip),
	)
	return cmd
}

func (c *cli) printTrip(verb string, t models.Trip) error {
	if c.jsonOutput || verb == "" {
		return c.printJSON(t)
	}
	fmt.Fprintf(c.out, "Trip #%d %s (ride #%d, %s)\n", t.ID, verb, t.RideID, t.Status)
	return nil
}
