package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/models"
)

func (c *cli) ridesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rides",
		Aliases: []string{"ride"},
		Short:   "List, inspect, request and cancel rides",
		GroupID: "backend",
	}

	var q backend.RideQuery
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List rides, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				q.Status = models.RideStatus(strings.ToUpper(status))
				if !q.Status.Known() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			rides, err := cl.ListRides(c.context(cmd), q)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(rides)
			}
			return c.printRides(rides)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().Int64Var(&q.RiderID, "rider", 0, "filter by rider id")
	list.Flags().Int64Var(&q.DriverID, "driver", 0, "filter by driver id")
	list.Flags().IntVar(&q.Limit, "limit", 100, "maximum rides to return")

	get := &cobra.Command{
		Use:   "get RIDE_ID",
		Short: "Show one ride",
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
			ride, err := cl.GetRide(c.context(cmd), id)
			if err != nil {
				return err
			}
			return c.printJSON(ride)
		},
	}

	var req models.CreateRideRequest
	create := &cobra.Command{
		Use:   "request",
		Short: "Request a ride for a rider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.RiderID <= 0 {
				return fmt.Errorf("--rider is required")
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			ride, err := cl.CreateRide(c.context(cmd), req)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(ride)
			}
			fmt.Fprintf(c.out, "Ride #%d requested (%s)\n", ride.ID, ride.Status)
			return nil
		},
	}
	f := create.Flags()
	f.Int64Var(&req.RiderID, "rider", 0, "rider id")
	f.Float64Var(&req.PickupLatitude, "pickup-lat", 0, "pickup latitude")
	f.Float64Var(&req.PickupLongitude, "pickup-lon", 0, "pickup longitude")
	f.StringVar(&req.PickupAddress, "pickup-address", "", "pickup address")
	f.Float64Var(&req.DestinationLatitude, "dest-lat", 0, "destination latitude")
	f.Float64Var(&req.DestinationLongitude, "dest-lon", 0, "destination longitude")
	f.StringVar(&req.DestinationAddress, "dest-address", "", "destination address")
	f.StringVar(&req.VehicleTier, "tier", "ECONOMY", "vehicle tier")
	f.StringVar(&req.PaymentMethod, "payment", "CARD", "payment method")
	f.StringVar(&req.Region, "region", getenvDefault("RIDE_REGION", "default"), "region")

	var reason string
	cancel := &cobra.Command{
		Use:   "cancel RIDE_ID",
		Short: "Cancel a ride",
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
			ride, err := cl.CancelRide(c.context(cmd), id, reason)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(ride)
			}
			fmt.Fprintf(c.out, "Ride #%d %s\n", ride.ID, ride.Status)
			return nil
		},
	}
	cancel.Flags().StringVar(&reason, "reason", "", "cancellation reason")

	cmd.AddCommand(list, get, create, cancel)
	return cmd
}

func (c *cli) printRides(rides []models.RideRecord) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRIDER\tDRIVER\tPICKUP\tDESTINATION")
	for _, r := range rides {
		driver := "-"
		if r.DriverID != nil {
			driver = fmt.Sprint(*r.DriverID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.Status, r.RiderID, driver, r.PickupAddress, r.DestinationAddress)
	}
	return tw.Flush()
}
