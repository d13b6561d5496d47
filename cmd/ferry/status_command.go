package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ferry/internal/api"
	"ferry/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts by upload and processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			stats, err := s.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromStats(stats))
			}
			printStats(cmd.OutOrStdout(), s.store.Path(), stats)
			return nil
		},
	}
}

func printStats(w io.Writer, dbPath string, stats records.Stats) {
	fmt.Fprintf(w, "Database:   %s\n", dbPath)
	fmt.Fprintf(w, "Records:    %s (%s linked duplicates)\n", formatCount(stats.Total), formatCount(stats.Duplicates))
	if stats.Total == 0 {
		fmt.Fprintln(w, "Nothing discovered yet. Run `ferry discover --manifest FILE` first.")
		return
	}

	upload := make([][]string, 0, len(records.UploadStatuses()))
	for _, status := range records.UploadStatuses() {
		upload = append(upload, []string{status.String(), formatCount(stats.ByUpload[status])})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Upload", "Count"}, upload, []columnAlignment{alignLeft, alignRight}))

	processing := [][]string{{records.ProcessingNone.String(), formatCount(stats.ByProcessing[records.ProcessingNone])}}
	for _, status := range records.ProcessingStatuses() {
		processing = append(processing, []string{status.String(), formatCount(stats.ByProcessing[status])})
	}
	fmt.Fprintln(w, renderTable([]string{"Processing", "Count"}, processing, []columnAlignment{alignLeft, alignRight}))

	pairs := make([][]string, 0, len(stats.Pairs))
	for _, pair := range stats.Pairs {
		pairs = append(pairs, []string{pair.Upload.String(), pair.Processing.String(), formatCount(pair.Count)})
	}
	fmt.Fprintln(w, renderTable([]string{"Upload", "Processing", "Count"}, pairs, []columnAlignment{alignLeft, alignLeft, alignRight}))
}
