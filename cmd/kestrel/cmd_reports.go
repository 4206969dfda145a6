package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var reportsFailedOnly bool

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Print a summary of stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := signalContext()
		defer cancel()

		stored, err := store.Scan(ctx)
		if err != nil {
			return withCode(exitPrecondition, fmt.Errorf("failed to scan reports: %w", err))
		}

		printReports(cmd.OutOrStdout(), stored, reportsFailedOnly)
		return nil
	},
}

func init() {
	reportsCmd.Flags().BoolVar(&reportsFailedOnly, "failed", false, "only show failed reports")
}

// printReports writes one line per report plus its findings. Documents
// that do not parse are listed as corrupt.
func printReports(w io.Writer, stored []domain.StoredReport, failedOnly bool) {
	passedColor := color.New(color.FgHiGreen).SprintFunc()
	failedColor := color.New(color.FgHiRed).SprintFunc()
	unknownColor := color.New(color.FgHiYellow).SprintFunc()
	nameColor := color.New(color.FgHiBlue).SprintFunc()

	var total, failed, corrupt int
	for _, doc := range stored {
		report, err := domain.DecodeReport(doc.Data)
		if err != nil {
			corrupt++
			if !failedOnly {
				fmt.Fprintf(w, "%s  %s\n", unknownColor("CORRUPT"), doc.Key)
			}
			continue
		}

		total++
		if report.Failed() {
			failed++
		} else if failedOnly {
			continue
		}

		var status string
		switch report.Status {
		case domain.StatusPassed:
			status = passedColor("PASSED ")
		case domain.StatusFailed:
			status = failedColor("FAILED ")
		default:
			status = unknownColor("UNKNOWN")
		}

		fmt.Fprintf(w, "%s  %s  completeness %s%% (threshold %s%%)  %s\n",
			status,
			nameColor(report.Filename),
			strconv.FormatFloat(report.Completeness, 'f', -1, 64),
			strconv.FormatFloat(report.Threshold, 'f', -1, 64),
			report.ValidatedAt,
		)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "         - %s\n", e)
		}
	}

	fmt.Fprintf(w, "\n%d reports, %s, %d corrupt\n", total, failedColor(strconv.Itoa(failed)+" failed"), corrupt)
}
