package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/config"
	"github.com/example/ridewatch/internal/logging"
)

type cli struct {
	out, errOut io.Writer
	backendURL  string
	timeout     time.Duration
	jsonOutput  bool
	verbose     bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}
	defaults, _ := config.Load()
	if defaults.BackendURL == "" {
		defaults.BackendURL = "http://localhost:8080"
	}
	if defaults.RequestTimeout <= 0 {
		defaults.RequestTimeout = 10 * time.Second
	}

	root := &cobra.Command{
		Use:           "ridectl",
		Short:         "Operate riders, drivers and trips on the ride backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.backendURL, "backend", defaults.BackendURL, "backend base URL (BACKEND_URL)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", defaults.RequestTimeout, "per-request timeout")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print raw JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log backend calls to stderr")

	root.AddGroup(
		&cobra.Group{ID: "backend", Title: "Backend Commands:"},
		&cobra.Group{ID: "local", Title: "Local Commands:"},
	)
	root.AddCommand(c.ridesCmd(), c.driverCmd(), c.riderCmd(), c.tripCmd(), c.tabCmd())

	wrapErrors(root, c)
	return root
}

// wrapErrors prints failures the way the dashboard shows them: the backend's
// message when there is one.
func wrapErrors(cmd *cobra.Command, c *cli) {
	for _, sub := range cmd.Commands() {
		wrapErrors(sub, c)
	}
	if cmd.RunE == nil {
		return
	}
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err != nil {
			fmt.Fprintf(c.errOut, "Error: %s\n", backend.UserMessage(err))
		}
		return err
	}
}

func (c *cli) client() (*backend.Client, error) {
	level := "error"
	if c.verbose {
		level = "debug"
	}
	return backend.New(c.backendURL, c.timeout, logging.New(c.errOut, level))
}

func (c *cli) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func parseFloat(s, what string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return f, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
