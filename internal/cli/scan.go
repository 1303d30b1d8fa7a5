package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/partnerwatch/ppscan/api/v1beta1/policies"
	"github.com/partnerwatch/ppscan/pkg/extract"
	"github.com/partnerwatch/ppscan/pkg/fetch"
	"github.com/partnerwatch/ppscan/pkg/report"
	"github.com/partnerwatch/ppscan/pkg/scan"
)

const scanExamples = `  # Scan the URLs in urls.txt against policy.yaml:
  ppscan scan --urls urls.txt

  # Scan with four concurrent page evaluations:
  ppscan scan --urls urls.txt --parallel 4

  # Skip evidence capture and write an HTML report:
  ppscan scan --urls urls.txt --no-evidence --report-html report.html

  # Write the default policy file and exit:
  ppscan scan --write-policy`

type ScanArgs struct {
	*RootArgs

	URLsFile    string
	PolicyPath  string
	EvidenceDir string
	ReportCSV   string
	ReportHTML  string
	Parallel    int
	NoEvidence  bool
	WritePolicy bool
}

func NewScanArgs(rootArgs *RootArgs) *ScanArgs {
	return &ScanArgs{
		RootArgs: rootArgs,
	}
}

func (sa *ScanArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sa.URLsFile, "urls", "", "Path to a file with one URL per line")
	cmd.Flags().StringVar(&sa.PolicyPath, "policy", "policy.yaml", "Path to the policy file")
	cmd.Flags().StringVar(&sa.EvidenceDir, "evidence-dir", "evidence", "Directory for per-page evidence files")
	cmd.Flags().BoolVar(&sa.NoEvidence, "no-evidence", false, "Skip writing evidence files")
	cmd.Flags().IntVar(&sa.Parallel, "parallel", 1, "Number of concurrent page evaluations")
	cmd.Flags().StringVar(&sa.ReportCSV, "report-csv", "report.csv", "Path for the CSV report")
	cmd.Flags().StringVar(&sa.ReportHTML, "report-html", "", "Path for the HTML report, empty to skip")
	cmd.Flags().BoolVar(&sa.WritePolicy, "write-policy", false, "Write the default policy file and exit")

	err := cmd.MarkFlagFilename("urls", "txt")
	if err != nil {
		panic(fmt.Errorf("mark urls flag: %w", err))
	}

	err = cmd.MarkFlagFilename("policy", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark policy flag: %w", err))
	}
}

func NewScanCmd(sa *ScanArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scan",
		Short:   "Fetch pages and evaluate them against the policy",
		Example: scanExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, sa)
		},
	}
	sa.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runScan(cmd *cobra.Command, sa *ScanArgs) error {
	if sa.WritePolicy {
		return policies.WriteDefault(sa.PolicyPath, true)
	}

	if sa.URLsFile == "" {
		return fmt.Errorf("--urls is required")
	}

	// The policy must be fully valid before the first request goes out.
	loader, err := policies.NewLoaderFromFile(sa.PolicyPath)
	if err != nil {
		return err
	}

	err = loader.Validate()
	if err != nil {
		return err
	}

	policy, err := loader.Load()
	if err != nil {
		return err
	}

	engine, err := policy.Engine()
	if err != nil {
		return err
	}

	err = engine.Validate()
	if err != nil {
		return fmt.Errorf("policy %s: %w", sa.PolicyPath, err)
	}

	urls, err := readURLs(sa.URLsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	run := report.NewRun(time.Now())

	slog.InfoContext(ctx, "starting scan",
		slog.String("run_id", run.ID),
		slog.String("policy", sa.PolicyPath),
		slog.Int("urls", len(urls)),
	)

	results := fetch.NewClient().FetchAll(ctx, urls)

	var evidence *report.EvidenceWriter

	if !sa.NoEvidence {
		evidence, err = report.NewEvidenceWriter(sa.EvidenceDir, run)
		if err != nil {
			return err
		}
	}

	pages := make([]scan.Page, len(results))

	for i, r := range results {
		if r.Err != nil {
			slog.WarnContext(ctx, "page fetch failed",
				slog.String("url", r.URL),
				slog.Any("error", r.Err),
			)

			pages[i] = scan.Page{URL: r.URL}

			continue
		}

		pages[i] = scan.Page{
			URL:      r.URL,
			FinalURL: r.FinalURL,
			Title:    r.Title,
			Text:     extract.Text(r.HTML),
			Status:   r.StatusCode,
		}

		if evidence != nil {
			err := evidence.Write(pages[i], r.HTML)
			if err != nil {
				slog.WarnContext(ctx, "write evidence",
					slog.String("url", r.URL),
					slog.Any("error", err),
				)
			}
		}
	}

	findings := engine.EvaluatePages(ctx, pages, sa.Parallel)

	pageResults := make([]report.PageResult, len(pages))
	total := 0

	for i := range pages {
		pageResults[i] = report.PageResult{Page: pages[i], Findings: findings[i]}
		total += len(findings[i])
	}

	err = writeReports(sa, run, pageResults)
	if err != nil {
		return err
	}

	mustN(fmt.Fprintf(cmd.OutOrStdout(), "%s across %s, report written to %s\n",
		english.Plural(total, "finding", ""),
		english.Plural(len(pages), "page", ""),
		sa.ReportCSV,
	))

	return nil
}

func writeReports(sa *ScanArgs, run report.Run, results []report.PageResult) error {
	csvFile, err := os.Create(sa.ReportCSV)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}

	err = report.WriteCSV(csvFile, run, results)
	if err != nil {
		_ = csvFile.Close()

		return err
	}

	err = csvFile.Close()
	if err != nil {
		return fmt.Errorf("close csv report: %w", err)
	}

	if sa.ReportHTML == "" {
		return nil
	}

	htmlFile, err := os.Create(sa.ReportHTML)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}

	err = report.WriteHTML(htmlFile, run, results)
	if err != nil {
		_ = htmlFile.Close()

		return err
	}

	err = htmlFile.Close()
	if err != nil {
		return fmt.Errorf("close html report: %w", err)
	}

	return nil
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	var urls []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		urls = append(urls, line)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%s: no URLs found", path)
	}

	return urls, nil
}
