package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/tailcast/pkg/transport/uds"
	tuimodel "github.com/modoterra/tailcast/pkg/tui/model"
	"github.com/modoterra/tailcast/pkg/viewer"
)

var tailNoColor bool

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream the log to stdout",
	Long:  "Prints the daemon's buffered lines, then follows new ones. Lost connections are retried; notices go to stderr.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := &printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), color: !tailNoColor}
		return viewer.Follow(ctx, cfg.StreamURL(), cfg.Viewer.ReconnectDelay.D(), p.handle)
	},
}

func init() {
	tailCmd.Flags().BoolVar(&tailNoColor, "no-color", false, "print lines without severity colors")
}

// printer writes stream updates as plain lines.
type printer struct {
	out      io.Writer
	errOut   io.Writer
	color    bool
	connects int
	last     uint64
}

func (p *printer) handle(u viewer.Update) {
	switch u.Kind {
	case viewer.UpdateConnected:
		if p.connects > 0 {
			fmt.Fprintln(p.errOut, "tailcast: reconnected, replaying buffer")
		}
		p.connects++
		p.last = 0
	case viewer.UpdateLine:
		if u.Line.Seq != 0 && u.Line.Seq <= p.last {
			return
		}
		p.last = u.Line.Seq
		text := u.Line.Text
		if p.color {
			text = tuimodel.RenderLine(text)
		}
		fmt.Fprintln(p.out, text)
	case viewer.UpdateStatus:
		if u.Degraded {
			fmt.Fprintln(p.errOut, "tailcast: log source degraded, lines may be missing")
		} else {
			fmt.Fprintln(p.errOut, "tailcast: log source recovered")
		}
	case viewer.UpdateDisconnected:
		fmt.Fprintf(p.errOut, "tailcast: stream lost (%v), reconnecting in %s\n", u.Err, u.RetryIn)
	}
}

// --- Logs by date ---

var logsNoColor bool

var logsCmd = &cobra.Command{
	Use:   "logs <YYYYMMDD>",
	Short: "Print the lines logged on one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		var resp uds.LogsByDateResponse
		if err := client.Call(ctx, uds.MethodLogsByDate, uds.LogsByDateRequest{Date: args[0]}, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, line := range resp.Lines {
			if !logsNoColor {
				line = tuimodel.RenderLine(line)
			}
			fmt.Fprintln(out, line)
		}
		if len(resp.Lines) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "no lines for %s\n", resp.Date)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVar(&logsNoColor, "no-color", false, "print lines without severity colors")
}
