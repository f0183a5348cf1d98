package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/onemirror/onemirror/internal/api"
	"github.com/onemirror/onemirror/internal/auth"
	"github.com/onemirror/onemirror/internal/backup"
	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/backup/scanner"
	"github.com/onemirror/onemirror/internal/backup/stats"
	"github.com/onemirror/onemirror/internal/backup/throttle"
	"github.com/onemirror/onemirror/internal/backup/transfer"
	"github.com/onemirror/onemirror/internal/config"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

var backupCmd = &cobra.Command{
	Use:   "backup <folder-id> <destination>",
	Short: "Mirror a OneDrive folder to local disk",
	Long: `Recursively download a OneDrive folder tree to a local directory.
Use "root" as the folder ID to back up the whole drive.

Existing files are skipped unless an overwrite policy says otherwise.
Interrupted large downloads resume from their last checkpoint.`,
	Args: cobra.ExactArgs(2),
	RunE: runBackup,
}

var (
	backupOverwrite    string
	backupOverwriteAll bool
	backupShared       bool
	backupExcludes     []string
	backupThrottle     int
	backupBatchSize    int
	backupChunkSizeMB  int
	backupMaxRetries   int
	backupMaxRequests  int
	backupSequential   bool
)

func init() {
	backupCmd.Flags().StringVar(&backupOverwrite, "overwrite", "never", "Overwrite policy (never, if-newer, always)")
	backupCmd.Flags().BoolVar(&backupOverwriteAll, "overwrite-all", false, "Overwrite every existing file (shorthand for --overwrite always)")
	backupCmd.Flags().BoolVar(&backupShared, "include-shared", false, "Include items shared into the folder")
	backupCmd.Flags().StringSliceVar(&backupExcludes, "exclude", []string{}, "Path prefix to skip (repeatable)")
	backupCmd.Flags().IntVar(&backupThrottle, "throttle", utils.DefaultThrottleLimit, "Maximum parallel downloads")
	backupCmd.Flags().IntVar(&backupBatchSize, "batch-size", utils.DefaultBatchSize, "Files dispatched per batch")
	backupCmd.Flags().IntVar(&backupChunkSizeMB, "chunk-size-mb", utils.DefaultChunkSizeMB, "Ranged download chunk size for large files")
	backupCmd.Flags().IntVar(&backupMaxRetries, "max-retries", utils.DefaultMaxRetries, "Retries per request or chunk")
	backupCmd.Flags().IntVar(&backupMaxRequests, "max-requests-per-minute", utils.DefaultMaxRequests, "API request budget per minute")
	backupCmd.Flags().BoolVar(&backupSequential, "sequential", false, "Download one file at a time")

	rootCmd.AddCommand(backupCmd)
}

// backupSummary is the result payload of a backup run.
type backupSummary struct {
	FolderID         string  `json:"folderId"`
	Destination      string  `json:"destination"`
	Processed        int64   `json:"processed"`
	Skipped          int64   `json:"skipped"`
	Errors           int64   `json:"errors"`
	BytesTransferred int64   `json:"bytesTransferred"`
	ElapsedSeconds   float64 `json:"elapsedSeconds"`
	DryRun           bool    `json:"dryRun,omitempty"`
}

func (s backupSummary) AsTableRenderer() types.TableRenderer {
	return summaryTable{s}
}

type summaryTable struct {
	s backupSummary
}

func (t summaryTable) Headers() []string {
	return []string{"Processed", "Skipped", "Errors", "Transferred", "Elapsed"}
}

func (t summaryTable) Rows() [][]string {
	return [][]string{{
		fmt.Sprintf("%d", t.s.Processed),
		fmt.Sprintf("%d", t.s.Skipped),
		fmt.Sprintf("%d", t.s.Errors),
		humanize.Bytes(uint64(t.s.BytesTransferred)),
		fmt.Sprintf("%.1fs", t.s.ElapsedSeconds),
	}}
}

func (t summaryTable) EmptyMessage() string {
	return "Nothing to back up"
}

func runBackup(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	folderID := args[0]
	destination := args[1]

	cfg, err := config.Load()
	if err != nil {
		return writeAppError(out, "backup", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build()))
	}
	applyConfigDefaults(cmd, cfg)

	policy, err := parseOverwritePolicy(backupOverwrite)
	if err != nil {
		return writeAppError(out, "backup", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build()))
	}

	client, err := newGraphClient(flags, backupMaxRequests, backupMaxRetries, cfg.RetryBaseDelay)
	if err != nil {
		return writeAppError(out, "backup", asAppError(err))
	}

	if backupShared || cfg.IncludeShared {
		backupShared = true
	}

	excludes := exclude.New(append(append([]string{}, cfg.Excludes...), backupExcludes...)...)
	counters := stats.NewCounters()

	policies := transfer.NewPolicyCell(policy)
	if backupOverwriteAll {
		policies.Escalate(types.OverwriteAlways)
	}

	worker := transfer.NewWorker(transfer.Config{
		Client:       client,
		Policies:     policies,
		Counters:     counters,
		Logger:       GetLogger(),
		Profile:      flags.Profile,
		ChunkSizeMB:  backupChunkSizeMB,
		MaxRetries:   backupMaxRetries,
		RetryDelayMs: cfg.RetryBaseDelay,
		DryRun:       flags.DryRun,
	})

	var dispatcher backup.Dispatcher = backup.SequentialDispatcher{}
	if !backupSequential && backupThrottle > 1 {
		adaptive := throttle.New(backupThrottle, throttle.NewSystemSampler(), GetLogger())
		dispatcher = backup.NewParallelDispatcher(adaptive, backupBatchSize)
	}

	engine := backup.New(backup.Config{
		Enumerator: scanner.NewRemote(client, flags.Profile, GetLogger()),
		Transferer: worker,
		Dispatcher: dispatcher,
		Excludes:   excludes,
		Counters:   counters,
		Logger:     GetLogger(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := stats.NewReporter(counters, 15*time.Second, GetLogger())
	go reporter.Run(ctx)
	defer reporter.Stop()

	snapshot, err := engine.Run(ctx, backup.Options{
		FolderID:      folderID,
		Destination:   destination,
		Policy:        policies.Get(),
		IncludeShared: backupShared,
		DryRun:        flags.DryRun,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return writeAppError(out, "backup", utils.NewAppError(
				utils.NewCLIError(utils.ErrCodeCancelled, "Backup interrupted").Build()))
		}
		return writeAppError(out, "backup", asAppError(err))
	}

	if snapshot.Errors > 0 {
		out.AddWarning("PARTIAL_FAILURE",
			fmt.Sprintf("%d items failed and were skipped; see the log for details", snapshot.Errors),
			"warning")
	}

	return out.WriteSuccess("backup", backupSummary{
		FolderID:         folderID,
		Destination:      destination,
		Processed:        snapshot.Processed,
		Skipped:          snapshot.Skipped,
		Errors:           snapshot.Errors,
		BytesTransferred: snapshot.BytesTransferred,
		ElapsedSeconds:   snapshot.Elapsed.Seconds(),
		DryRun:           flags.DryRun,
	})
}

// applyConfigDefaults fills in unset flags from the config file.
func applyConfigDefaults(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("throttle") {
		backupThrottle = cfg.ThrottleLimit
	}
	if !cmd.Flags().Changed("batch-size") {
		backupBatchSize = cfg.BatchSize
	}
	if !cmd.Flags().Changed("chunk-size-mb") {
		backupChunkSizeMB = cfg.ChunkSizeMB
	}
	if !cmd.Flags().Changed("max-retries") {
		backupMaxRetries = cfg.MaxRetries
	}
	if !cmd.Flags().Changed("max-requests-per-minute") {
		backupMaxRequests = cfg.MaxRequestsPerMinute
	}
}

func parseOverwritePolicy(value string) (types.OverwritePolicy, error) {
	switch value {
	case "never", "":
		return types.OverwriteNever, nil
	case "if-newer":
		return types.OverwriteIfNewer, nil
	case "always":
		return types.OverwriteAlways, nil
	default:
		return types.OverwriteNever, fmt.Errorf("invalid overwrite policy: %s (must be 'never', 'if-newer', or 'always')", value)
	}
}

// newGraphClient authenticates the profile and builds an API client.
func newGraphClient(flags types.GlobalFlags, maxRequests, maxRetries, retryDelayMs int) (*api.Client, error) {
	mgr := auth.NewManager(getConfigDir())

	creds, err := mgr.GetValidCredentials(flags.Profile)
	if err != nil {
		return nil, err
	}

	return api.NewClient(api.ClientConfig{
		TokenSource:          mgr.TokenSource(creds),
		MaxRequestsPerMinute: maxRequests,
		MaxRetries:           maxRetries,
		RetryDelayMs:         retryDelayMs,
		Logger:               GetLogger(),
	}), nil
}

// writeAppError renders the error envelope and returns the error so the
// process exits with its mapped code.
func writeAppError(out *OutputWriter, command string, appErr *utils.AppError) error {
	_ = out.WriteError(command, appErr.CLIError)
	return appErr
}

func asAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
}
