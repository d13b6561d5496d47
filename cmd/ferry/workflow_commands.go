package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ferry/internal/discovery"
	"ferry/internal/fingerprint"
	"ferry/internal/workflow"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var manifest string
	var policyFlag string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Record files listed in a manifest (JSON array or JSON Lines; '-' reads stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()

			policy, err := resolvePolicy(s, policyFlag)
			if err != nil {
				return err
			}
			runCtx, stop := runContext(cmd)
			defer stop()
			defer s.flushMetrics(context.WithoutCancel(runCtx))

			summary, err := ingestManifest(runCtx, s, manifest, policy, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			printDiscoverySummary(cmd.OutOrStdout(), summary, policy)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "Manifest file describing remote files")
	cmd.Flags().StringVar(&policyFlag, "duplicates", "", "Duplicate policy: skip, upload, replace or track (default from config)")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var opts workflow.UploadOptions

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload pending records, retrying earlier failures once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.cfg.RequireCredentials(); err != nil {
				return err
			}

			runCtx, stop := runContext(cmd)
			defer stop()
			defer s.flushMetrics(context.WithoutCancel(runCtx))

			if err := s.resetStuck(runCtx); err != nil {
				return err
			}
			mgr := s.manager(ctx.newClient(s.cfg))
			summary, err := mgr.RunUploads(runCtx, opts)
			if ctx.jsonOutput() {
				if encErr := writeJSON(cmd, summary); encErr != nil {
					return encErr
				}
			} else {
				printUploadSummary(cmd.OutOrStdout(), summary)
			}
			return finalError(runCtx, err)
		},
	}
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Concurrent upload workers (default from config)")
	cmd.Flags().BoolVar(&opts.SkipRetries, "skip-retries", false, "Do not retry transient failures or previously failed records")
	cmd.Flags().StringVar(&opts.RemoteID, "remote-id", "", "Upload only the record with this remote id")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var opts workflow.VerifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Poll processing status for uploaded records until they settle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.cfg.RequireCredentials(); err != nil {
				return err
			}

			runCtx, stop := runContext(cmd)
			defer stop()
			defer s.flushMetrics(context.WithoutCancel(runCtx))

			mgr := s.manager(ctx.newClient(s.cfg))
			summary, err := mgr.RunVerification(runCtx, opts)
			if ctx.jsonOutput() {
				if encErr := writeJSON(cmd, summary); encErr != nil {
					return encErr
				}
			} else {
				printVerifySummary(cmd.OutOrStdout(), summary)
			}
			return finalError(runCtx, err)
		},
	}
	addVerifyFlags(cmd, &opts)
	return cmd
}

// runResult is the --json payload of `ferry run`.
type runResult struct {
	Discovery *discovery.Summary      `json:"discovery,omitempty"`
	Upload    workflow.UploadSummary  `json:"upload"`
	Verify    *workflow.VerifySummary `json:"verify,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var manifest string
	var policyFlag string
	var skipVerify bool
	var uploadOpts workflow.UploadOptions
	var verifyOpts workflow.VerifyOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover (optionally), upload, then verify in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.cfg.RequireCredentials(); err != nil {
				return err
			}
			policy, err := resolvePolicy(s, policyFlag)
			if err != nil {
				return err
			}

			runCtx, stop := runContext(cmd)
			defer stop()
			defer s.flushMetrics(context.WithoutCancel(runCtx))

			out := cmd.OutOrStdout()
			var result runResult
			if strings.TrimSpace(manifest) != "" {
				summary, err := ingestManifest(runCtx, s, manifest, policy, cmd.InOrStdin())
				if err != nil {
					return err
				}
				result.Discovery = &summary
				if !ctx.jsonOutput() {
					printDiscoverySummary(out, summary, policy)
				}
			}

			if err := s.resetStuck(runCtx); err != nil {
				return err
			}
			verifyOpts.SkipRetries = uploadOpts.SkipRetries
			mgr := s.manager(ctx.newClient(s.cfg))
			result.Upload, err = mgr.RunUploads(runCtx, uploadOpts)
			if !ctx.jsonOutput() {
				printUploadSummary(out, result.Upload)
			}
			if err == nil && runCtx.Err() == nil && !skipVerify {
				var summary workflow.VerifySummary
				summary, err = mgr.RunVerification(runCtx, verifyOpts)
				result.Verify = &summary
				if !ctx.jsonOutput() {
					printVerifySummary(out, summary)
				}
			}
			if ctx.jsonOutput() {
				if encErr := writeJSON(cmd, result); encErr != nil {
					return encErr
				}
			}
			return finalError(runCtx, err)
		},
	}
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "Manifest to discover before uploading")
	cmd.Flags().StringVar(&policyFlag, "duplicates", "", "Duplicate policy: skip, upload, replace or track (default from config)")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Stop after the upload phase")
	cmd.Flags().IntVarP(&uploadOpts.Workers, "workers", "w", 0, "Concurrent upload workers (default from config)")
	cmd.Flags().BoolVar(&uploadOpts.SkipRetries, "skip-retries", false, "Do not retry transient failures or previously failed records")
	addVerifyFlags(cmd, &verifyOpts)
	return cmd
}

func addVerifyFlags(cmd *cobra.Command, opts *workflow.VerifyOptions) {
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Verification wall-clock budget (default from config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Delay between verification passes (default from config)")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "Maximum verification passes (default from config)")
}

func resolvePolicy(s *session, flag string) (fingerprint.Policy, error) {
	value := strings.TrimSpace(flag)
	if value == "" {
		value = s.cfg.Discovery.DuplicatePolicy
	}
	return fingerprint.ParsePolicy(value)
}

func ingestManifest(ctx context.Context, s *session, path string, policy fingerprint.Policy, stdin io.Reader) (discovery.Summary, error) {
	var (
		descriptors []discovery.Descriptor
		err         error
	)
	if strings.TrimSpace(path) == "-" {
		descriptors, err = discovery.Decode(stdin)
	} else {
		descriptors, err = discovery.DecodeFile(path)
	}
	if err != nil {
		return discovery.Summary{}, fmt.Errorf("read manifest: %w", err)
	}
	svc, err := s.discoveryService()
	if err != nil {
		return discovery.Summary{}, err
	}
	return svc.Ingest(ctx, descriptors, policy)
}

// finalError surfaces cancellation so main exits non-zero without printing
// anything beyond the summary already written.
func finalError(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func printDiscoverySummary(w io.Writer, s discovery.Summary, policy fingerprint.Policy) {
	fmt.Fprintf(w, "Discovery (%s): %s seen, %s inserted, %s already known, %s duplicates (%s skipped), %s invalid\n",
		policy, formatCount(s.Seen), formatCount(s.Inserted), formatCount(s.Existing),
		formatCount(s.Duplicates), formatCount(s.Skipped), formatCount(s.Invalid))
}

func printUploadSummary(w io.Writer, s workflow.UploadSummary) {
	fmt.Fprintf(w, "Uploads: %s new, %s retried, %s succeeded, %s failed",
		formatCount(s.New), formatCount(s.Retried), formatCount(s.Succeeded), formatCount(s.Failed))
	if s.Interrupted > 0 {
		fmt.Fprintf(w, ", %s interrupted", formatCount(s.Interrupted))
	}
	if s.AlreadyComplete > 0 {
		fmt.Fprintf(w, ", %s already complete", formatCount(s.AlreadyComplete))
	}
	fmt.Fprintln(w)
}

func printVerifySummary(w io.Writer, s workflow.VerifySummary) {
	fmt.Fprintf(w, "Verification stopped (%s) after %d iterations: %s checked, %s changed, %s completed, %s failed, %s errors, %s remaining\n",
		s.StopReason, s.Iterations, formatCount(s.Checked), formatCount(s.Changed),
		formatCount(s.Completed), formatCount(s.Failed), formatCount(s.Errors), formatCount(s.Remaining))
}
