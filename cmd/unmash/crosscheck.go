package main

import (
	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/crosscheck"
)

func init() {
	rootCmd.AddCommand(crosscheckCmd)
}

var crosscheckCmd = &cobra.Command{
	Use:   "crosscheck <doi>...",
	Short: "Compare a DOI's metadata in OpenCitations Meta and Crossref",
	Long: `Compare the title, authors and publisher OpenCitations Meta and Crossref
hold for each DOI. A DOI is reported consistent when the titles agree, or
when both the authors and the publisher agree.

The report is advisory. It helps while reviewing a DOI; it never changes
a disposition.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrosscheck,
}

func runCrosscheck(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	meta := newMetaClient(cfg, nil)
	cr := newCrossrefClient(cfg, nil)

	reports := make([]crosscheck.Report, 0, len(args))
	for _, d := range args {
		r := crosscheck.Check(cmd.Context(), d, meta, cr)
		if r.Error != "" {
			logger.Warn().Str("doi", r.DOI).Str("error", r.Error).Msg("crosscheck incomplete")
		}
		reports = append(reports, r)
	}

	if !humanOutput {
		outputJSON(reports)
		return nil
	}
	for _, r := range reports {
		if r.Error != "" {
			outputHuman("%s  error: %s\n\n", r.DOI, r.Error)
			continue
		}
		verdict := "consistent"
		if !r.Consistent {
			verdict = "INCONSISTENT"
		}
		outputHuman("%s  %s\n", r.DOI, verdict)
		for _, f := range []struct {
			name  string
			field *crosscheck.Field
		}{{"title", r.Title}, {"authors", r.Authors}, {"publisher", r.Publisher}} {
			mark := "="
			if !f.field.Match {
				mark = "≠"
			}
			outputHuman("  %-10s %s  %s: %s\n", f.name, mark, r.LeftName, truncateString(f.field.Left, TitleMaxLen))
			outputHuman("  %-10s    %s: %s\n", "", r.RightName, truncateString(f.field.Right, TitleMaxLen))
		}
		outputHuman("\n")
	}
	return nil
}
