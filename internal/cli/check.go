package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/rpcmon/internal/core/domain"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check [provider_id]",
	Short: "Probe one provider now and record the result",
	Args:  cobra.ExactArgs(1),
	Run:   runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the record as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	app, ctx := newService(cmd)
	defer func() {
		_ = app.Close()
	}()

	provider, err := app.Store().GetProvider(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load provider", "provider_id", args[0], "error", err)
		os.Exit(1)
	}

	record, err := app.Scheduler().CheckOne(ctx, *provider)
	if err != nil {
		slog.Error("Check failed", "provider_id", args[0], "error", err)
		os.Exit(1)
	}

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(record)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATUS\tLATENCY\tERROR\tCHECKED")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		provider.Name,
		record.Verdict,
		formatLatency(record),
		formatError(record),
		record.CheckedAt.Format(time.RFC3339),
	)
	_ = w.Flush()
}

func formatLatency(r *domain.HealthRecord) string {
	if r == nil || r.ResponseTimeMs == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fms", *r.ResponseTimeMs)
}

func formatError(r *domain.HealthRecord) string {
	if r == nil || r.Error == nil {
		return "-"
	}
	return *r.Error
}
