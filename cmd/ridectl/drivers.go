package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ridewatch/internal/models"
)

func (c *cli) driverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "driver",
		Short:   "Driver profile, location and ride acceptance",
		GroupID: "backend",
	}

	get := &cobra.Command{
		Use:   "get DRIVER_ID",
		Short: "Show a driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "driver")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			d, err := cl.GetDriver(c.context(cmd), id)
			if err != nil {
				return err
			}
			return c.printJSON(d)
		},
	}

	var req models.CreateDriverRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			d, err := cl.CreateDriver(c.context(cmd), req)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(d)
			}
			fmt.Fprintf(c.out, "Driver #%d created\n", d.ID)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&req.Name, "name", "", "full name")
	f.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	f.StringVar(&req.Email, "email", "", "email")
	f.StringVar(&req.LicenseNumber, "license", "", "license number")
	f.StringVar(&req.VehicleNumber, "vehicle", "", "vehicle number")
	f.StringVar(&req.VehicleTier, "tier", "ECONOMY", "vehicle tier")
	f.StringVar(&req.Status, "status", "AVAILABLE", "initial status")
	f.StringVar(&req.Region, "region", getenvDefault("RIDE_REGION", "default"), "region")

	location := &cobra.Command{
		Use:   "location DRIVER_ID LAT LON",
		Short: "Report a driver location",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "driver")
			if err != nil {
				return err
			}
			lat, err := parseFloat(args[1], "latitude")
			if err != nil {
				return err
			}
			lon, err := parseFloat(args[2], "longitude")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			u := models.LocationUpdate{DriverID: id, Latitude: lat, Longitude: lon, Timestamp: time.Now().UnixMilli()}
			if err := cl.UpdateLocation(c.context(cmd), id, u); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Location updated")
			return nil
		},
	}

	accept := &cobra.Command{
		Use:   "accept DRIVER_ID RIDE_ID",
		Short: "Accept a ride as a driver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			driverID, err := parseID(args[0], "driver")
			if err != nil {
				return err
			}
			rideID, err := parseID(args[1], "ride")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			ride, err := cl.AcceptRide(c.context(cmd), driverID, models.AcceptRideRequest{RideID: rideID, DriverID: driverID})
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(ride)
			}
			fmt.Fprintf(c.out, "Ride #%d accepted\n", ride.ID)
			return nil
		},
	}

	pending := &cobra.Command{
		Use:   "pending DRIVER_ID",
		Short: "List rides waiting for a driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "driver")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			rides, err := cl.PendingRides(c.context(cmd), id)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(rides)
			}
			return c.printRides(rides)
		},
	}

	update := &cobra.Command{
		Use:   "update DRIVER_ID",
		Short: "Change driver profile fields; only the flags given are sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "driver")
			if err != nil {
				return err
			}
			req := models.UpdateDriverRequest{
				Name:          changedString(cmd, "name"),
				PhoneNumber:   changedString(cmd, "phone"),
				Email:         changedString(cmd, "email"),
				LicenseNumber: changedString(cmd, "license"),
				VehicleNumber: changedString(cmd, "vehicle"),
				VehicleTier:   changedString(cmd, "tier"),
				Status:        changedString(cmd, "status"),
				Region:        changedString(cmd, "region"),
				Rating:        changedFloat(cmd, "rating"),
			}
			if req == (models.UpdateDriverRequest{}) {
				return errNothingToUpdate
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			d, err := cl.UpdateDriver(c.context(cmd), id, req)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(d)
			}
			fmt.Fprintf(c.out, "Driver #%d updated\n", d.ID)
			return nil
		},
	}
	uf := update.Flags()
	uf.String("name", "", "full name")
	uf.String("phone", "", "phone number")
	uf.String("email", "", "email")
	uf.String("license", "", "license number")
	uf.String("vehicle", "", "vehicle number")
	uf.String("tier", "", "vehicle tier")
	uf.String("status", "", "driver status")
	uf.String("region", "", "region")
	uf.Float64("rating", 0, "rating")

	cmd.AddCommand(get, create, update, location, accept, pending)
	return cmd
}

func (c *cli) riderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rider",
		Short:   "Rider profiles",
		GroupID: "backend",
	}

	get := &cobra.Command{
		Use:   "get RIDER_ID",
		Short: "Show a rider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "rider")
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			r, err := cl.GetRider(c.context(cmd), id)
			if err != nil {
				return err
			}
			return c.printJSON(r)
		},
	}

	var req models.CreateRiderRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a rider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			r, err := cl.CreateRider(c.context(cmd), req)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(r)
			}
			fmt.Fprintf(c.out, "Rider #%d created\n", r.ID)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&req.Name, "name", "", "full name")
	f.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	f.StringVar(&req.Email, "email", "", "email")
	f.StringVar(&req.Region, "region", getenvDefault("RIDE_REGION", "default"), "region")

	update := &cobra.Command{
		Use:   "update RIDER_ID",
		Short: "Change rider profile fields; only the flags given are sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "rider")
			if err != nil {
				return err
			}
			req := models.UpdateRiderRequest{
				Name:        changedString(cmd, "name"),
				PhoneNumber: changedString(cmd, "phone"),
				Email:       changedString(cmd, "email"),
				Region:      changedString(cmd, "region"),
				Rating:      changedFloat(cmd, "rating"),
			}
			if req == (models.UpdateRiderRequest{}) {
				return errNothingToUpdate
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			r, err := cl.UpdateRider(c.context(cmd), id, req)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(r)
			}
			fmt.Fprintf(c.out, "Rider #%d updated\n", r.ID)
			return nil
		},
	}
	uf := update.Flags()
	uf.String("name", "", "full name")
	uf.String("phone", "", "phone number")
	uf.String("email", "", "email")
	uf.String("region", "", "region")
	uf.Float64("rating", 0, "rating")

	cmd.AddCommand(get, create, update)
	return cmd
}

var errNothingToUpdate = errors.New("nothing to update: pass at least one field flag")

// changedString is the flag's value when it was given on the command line.
func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func changedFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
