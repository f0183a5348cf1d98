package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/backup/scanner"
	"github.com/onemirror/onemirror/internal/config"
	"github.com/onemirror/onemirror/internal/utils"
	"github.com/onemirror/onemirror/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <folder-id> <destination>",
	Short: "Compare a OneDrive folder against its local mirror",
	Long: `List the remote folder tree and the local mirror and report every
file that is missing, has a different size, or exists only locally.
Comparison is by size; content hashes are not checked.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

var (
	verifyShared   bool
	verifyExcludes []string
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyShared, "include-shared", false, "Include items shared into the folder")
	verifyCmd.Flags().StringSliceVar(&verifyExcludes, "exclude", []string{}, "Path prefix to skip (repeatable)")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	folderID := args[0]
	destination := args[1]

	cfg, err := config.Load()
	if err != nil {
		return writeAppError(out, "verify", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build()))
	}

	client, err := newGraphClient(flags, cfg.MaxRequestsPerMinute, cfg.MaxRetries, cfg.RetryBaseDelay)
	if err != nil {
		return writeAppError(out, "verify", asAppError(err))
	}

	excludes := exclude.New(append(append([]string{}, cfg.Excludes...), verifyExcludes...)...)
	engine := verify.New(
		scanner.NewRemote(client, flags.Profile, GetLogger()),
		scanner.NewLocal(GetLogger()),
		excludes,
		GetLogger(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := engine.Verify(ctx, verify.Options{
		FolderID:      folderID,
		Destination:   destination,
		IncludeShared: verifyShared || cfg.IncludeShared,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return writeAppError(out, "verify", utils.NewAppError(
				utils.NewCLIError(utils.ErrCodeCancelled, "Verification interrupted").Build()))
		}
		return writeAppError(out, "verify", asAppError(err))
	}

	if result.ListingErrors > 0 {
		out.AddWarning("LISTING_ERRORS",
			fmt.Sprintf("%d folders could not be listed and were skipped", result.ListingErrors),
			"warning")
	}
	if !result.Clean() {
		out.AddWarning("VERIFY_DIFFS",
			fmt.Sprintf("%d files differ between remote and local", len(result.Diffs)),
			"warning")
	}

	if err := out.WriteSuccess("verify", result); err != nil {
		return err
	}

	if !result.Clean() {
		// Non-zero exit so scripts can detect an incomplete mirror.
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeSizeMismatch,
			fmt.Sprintf("Verification found %d differences", len(result.Diffs))).Build())
	}
	return nil
}
