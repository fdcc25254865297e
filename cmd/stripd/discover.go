package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/stripd/internal/app"
	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/discovery"
)

var (
	flagJSON   bool
	flagWindow time.Duration
)

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the network once and print every strip found",
		RunE:  runDiscover,
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Print descriptors as JSON")
	cmd.Flags().DurationVar(&flagWindow, "window", 0, "Override the discovery window")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if flagWindow > 0 {
		cfg.Discovery.Window = config.Duration(flagWindow)
	}

	descriptors, err := app.NewDiscoveryEngine(cfg.Discovery).Discover(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), descriptors)
	}
	return printTable(cmd.OutOrStdout(), descriptors)
}

func printJSON(w io.Writer, descriptors []discovery.Descriptor) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(descriptors)
}

func printTable(w io.Writer, descriptors []discovery.Descriptor) error {
	if len(descriptors) == 0 {
		_, err := fmt.Fprintln(w, "No light strips found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMAC\tSERIAL\tADDRESS\tHOSTNAME")
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.UniqueName, d.MAC, d.Serial, d.Address, d.Hostname)
	}
	return tw.Flush()
}
