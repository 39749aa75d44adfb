package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest status, uptime and open alert of every provider",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	app, ctx := newService(cmd)
	defer func() {
		_ = app.Close()
	}()

	report, err := app.Monitor().CheckHealth(ctx)
	if err != nil {
		slog.Error("Failed to build status report", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATUS\tLATENCY\tUPTIME\tCHECKED\tALERT")

	for _, p := range report.Providers {
		checked := "-"
		if p.Latest != nil {
			checked = p.Latest.CheckedAt.Format(time.RFC3339)
		}
		alert := "-"
		if p.OpenAlert != nil {
			alert = "open since " + p.OpenAlert.CreatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
			p.Name, p.Status, formatLatency(p.Latest), p.UptimePercent, checked, alert)
	}
	_ = w.Flush()

	fmt.Printf("\nfleet: %s (%d open alerts)\n", report.SystemStatus, report.OpenAlerts)
}
