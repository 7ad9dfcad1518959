package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/docsync/internal/control"
	"github.com/vietddude/docsync/internal/resilience/diagnostics"
)

var diagnoseJSON bool

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the diagnostics battery once and print the results",
	RunE:  runDiagnose,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	layer, err := control.NewLayer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize resilience layer", "error", err)
		return err
	}
	defer func() {
		_ = layer.Close(ctx)
	}()

	results := layer.Diagnose(ctx)
	status := diagnostics.Summarize(results)
	if diagnoseJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(diagnostics.Report{Status: status, Results: results}); err != nil {
			return err
		}
	} else {
		printResults(cmd.OutOrStdout(), results)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nOverall: %s\n", status)
	}

	if status == diagnostics.StatusCritical {
		return errors.New("diagnostics reported critical status")
	}
	return nil
}

func printResults(out io.Writer, results []diagnostics.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TEST\tSTATUS\tDURATION\tMESSAGE")
	for _, res := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Test, res.Status, res.Duration, res.Message)
	}
	_ = w.Flush()
}
