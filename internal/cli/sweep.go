package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check every provider once and print a summary",
	Run:   runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	app, ctx := newService(cmd)
	defer func() {
		_ = app.Close()
	}()

	summary, err := app.Scheduler().RunSweep(ctx)
	fmt.Printf("providers: %d  online: %d  offline: %d  failed: %d  alerts opened: %d  resolved: %d  took: %s\n",
		summary.Total, summary.Online, summary.Offline, summary.Failed,
		summary.AlertsOpened, summary.AlertsResolved, summary.Duration)
	if err != nil {
		slog.Error("Sweep finished with errors", "error", err)
		os.Exit(1)
	}
}
