package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ferry/internal/api"
	"ferry/internal/records"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"record"},
		Short:   "Inspect and administer file records",
	}
	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsRemoveCommand(ctx))
	return recordsCmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var uploadFlag, processingFlag string
	var duplicates bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records in discovery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(uploadFlag, processingFlag, duplicates, limit)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			list, err := s.store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.RecordListResponse{Records: api.FromRecords(list)})
			}
			printRecordTable(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&uploadFlag, "upload", "", "Filter by upload status (pending, uploading, completed, failed)")
	cmd.Flags().StringVar(&processingFlag, "processing", "", "Filter by processing status (none, pending, processing, completed, failed)")
	cmd.Flags().BoolVar(&duplicates, "duplicates", false, "Only records linked to an earlier original")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to show (0 for all)")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <remote-id>",
		Short: "Show every stored field of one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			remoteID := strings.TrimSpace(args[0])
			rec, err := s.store.Get(cmd.Context(), remoteID)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%w: %s", records.ErrNotFound, remoteID)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.RecordResponse{Record: api.FromRecord(rec)})
			}
			printRecordDetail(cmd.OutOrStdout(), rec, time.Now())
			return nil
		},
	}
}

func newRecordsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <remote-id>",
		Short: "Delete a record so the file can be rediscovered from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()

			svc, err := s.discoveryService()
			if err != nil {
				return err
			}
			remoteID := strings.TrimSpace(args[0])
			if err := svc.Remove(cmd.Context(), remoteID); err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return fmt.Errorf("no record with remote id %q", remoteID)
				}
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"removed": remoteID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", remoteID)
			return nil
		},
	}
}

func buildFilter(upload, processing string, duplicates bool, limit int) (records.Filter, error) {
	filter := records.Filter{DuplicatesOnly: duplicates, Limit: limit}
	if strings.TrimSpace(upload) != "" {
		status, ok := records.ParseUploadStatus(upload)
		if !ok {
			return filter, fmt.Errorf("unknown upload status %q", upload)
		}
		filter.UploadStatus = status
	}
	if strings.TrimSpace(processing) != "" {
		status, ok := records.ParseProcessingStatus(processing)
		if !ok {
			return filter, fmt.Errorf("unknown processing status %q", processing)
		}
		filter.ProcessingStatus = &status
	}
	if limit < 0 {
		return filter, fmt.Errorf("limit must not be negative, got %d", limit)
	}
	return filter, nil
}

func printRecordTable(w io.Writer, list []*records.Record) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No records match.")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, rec := range list {
		rows = append(rows, []string{
			rec.RemoteID,
			truncate(dashIfEmpty(rec.Name), 40),
			formatSize(rec.Size),
			statusLabel(rec),
			strconv.Itoa(rec.AttemptCount),
			dashIfEmpty(rec.DuplicateOf),
			truncate(dashIfEmpty(rec.LastError), 48),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Remote ID", "Name", "Size", "Status", "Attempts", "Duplicate Of", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func printRecordDetail(w io.Writer, rec *records.Record, now time.Time) {
	line := func(label, value string) {
		fmt.Fprintf(w, "%-18s %s\n", label+":", value)
	}
	line("Remote ID", rec.RemoteID)
	line("Name", dashIfEmpty(rec.Name))
	line("URL", rec.URL)
	line("Size", formatSize(rec.Size))
	line("Content Type", dashIfEmpty(rec.ContentType))
	line("Fingerprint", dashIfEmpty(rec.Fingerprint))
	if rec.IsDuplicate() {
		line("Duplicate Of", fmt.Sprintf("%s (%s)", rec.DuplicateOf, dashIfEmpty(rec.DuplicatePolicy)))
	}
	line("Upload", rec.UploadStatus.String())
	line("Processing", rec.ProcessingStatus.String())
	line("External ID", dashIfEmpty(rec.ExternalID))
	line("Pages", formatPages(rec.PageCount))
	line("Attempts", strconv.Itoa(rec.AttemptCount))
	discovered := rec.DiscoveredAt
	line("Discovered", formatWhen(&discovered, now))
	line("Last Attempt", formatWhen(rec.AttemptedAt, now))
	line("Uploaded", formatWhen(rec.UploadedAt, now))
	line("Last Checked", formatWhen(rec.LastCheckedAt, now))
	line("Completed", formatWhen(rec.CompletedAt, now))
	if rec.LastError != "" {
		line("Last Error", rec.LastError)
	}
	if rec.UploadResponse != "" {
		line("Upload Response", rec.UploadResponse)
	}
	if rec.VerificationResponse != "" {
		line("Status Response", rec.VerificationResponse)
	}
}
