package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/tailcast/pkg/transport/uds"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's source and stream status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()

		var st uds.StatusResponse
		if err := client.Call(ctx, uds.MethodStatus, nil, &st); err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStatus(cmd.OutOrStdout(), st, time.Now())
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printStatus(w io.Writer, st uds.StatusResponse, now time.Time) {
	state := "following"
	if st.Degraded {
		state = "degraded"
		if st.Reason != "" {
			state += " (" + st.Reason + ")"
		}
	}
	uptime := now.Sub(st.StartedAt).Truncate(time.Second)

	fmt.Fprintf(w, "%-10s %s\n", "source:", st.Source)
	fmt.Fprintf(w, "%-10s %s\n", "state:", state)
	fmt.Fprintf(w, "%-10s %s (up %s)\n", "started:", st.StartedAt.Format(time.DateTime), uptime)
	fmt.Fprintf(w, "%-10s %d\n", "viewers:", st.Subscribers)
	fmt.Fprintf(w, "%-10s %d/%d lines\n", "buffered:", st.Buffered, st.Capacity)
	fmt.Fprintf(w, "%-10s %d\n", "last seq:", st.LastSeq)
	fmt.Fprintf(w, "%-10s %d published, %d slow viewers dropped\n", "totals:", st.Published, st.Dropped)
}
