package commands

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"path"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/fetch"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

var processCmd = &cobra.Command{
	Use:   "process <url>",
	Short: "Download a file and clean it into the storage directory",
	Long: `Download a CSV or Excel file, remove duplicate and empty rows, rename
every column and trim text cells. The result is written to the storage
directory as cleaned_<id>.xlsx, exactly as the HTTP API would.

Examples:
  cleanctl process https://example.com/export.csv
  cleanctl process "https://example.com/download?id=7" --filename report.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var previewCmd = &cobra.Command{
	Use:   "preview <url>",
	Short: "Show the first rows of a remote file without cleaning it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	rootCmd.AddCommand(processCmd, previewCmd)

	for _, cmd := range []*cobra.Command{processCmd, previewCmd} {
		flags := cmd.Flags()
		flags.String("filename", "", "file name that determines the format (default: last URL path segment)")
		flags.Int64("max-bytes", fetch.DefaultMaxBytes, "largest accepted download in bytes")
		flags.Duration("timeout", fetch.DefaultTimeout, "download timeout")
	}
	processCmd.Flags().String("suffix", transform.DefaultSuffix, "suffix appended to every column name")
	previewCmd.Flags().Int("rows", core.DefaultPreviewRows, "number of rows to show")
}

// jobRequest builds a request from the URL argument and --filename.
func jobRequest(cmd *cobra.Command, rawURL string) core.Request {
	filename, _ := cmd.Flags().GetString("filename")
	if filename == "" {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); base != "/" && base != "." {
				filename = base
			}
		}
	}
	return core.Request{FileURL: rawURL, Filename: filename}
}

func jobService(cmd *cobra.Command) (*core.Service, error) {
	maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	suffix := transform.DefaultSuffix
	if cmd.Flags().Lookup("suffix") != nil {
		suffix, _ = cmd.Flags().GetString("suffix")
	}
	return newService(serviceOptions{maxBytes: maxBytes, timeout: timeout, suffix: suffix})
}

func runProcess(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service, err := jobService(cmd)
	if err != nil {
		return err
	}

	res, err := service.Process(ctx, jobRequest(cmd, args[0]))
	if err != nil {
		return cliError(err)
	}

	out, err := service.Store().OutputPath(res.FileID)
	if err != nil {
		return err
	}
	summary := newJobSummary(args[0], res.Report, res.InputBytes, res.OutputBytes, res.Timings.Total)
	summary.FileID = res.FileID
	summary.Path = out
	summary.Format = string(res.Format)
	summary.Engine = res.Engine
	summary.Encoding = res.Encoding
	return printResult(cmd.OutOrStdout(), viper.GetString("output"), summary)
}

// previewOutput is what preview prints.
type previewOutput struct {
	Format    string   `json:"format" yaml:"format"`
	Engine    string   `json:"engine" yaml:"engine"`
	TotalRows int      `json:"total_rows" yaml:"total_rows"`
	Columns   []string `json:"columns" yaml:"columns"`
	Rows      [][]any  `json:"rows" yaml:"rows"`
}

func runPreview(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service, err := jobService(cmd)
	if err != nil {
		return err
	}
	rows, _ := cmd.Flags().GetInt("rows")

	res, err := service.Preview(ctx, jobRequest(cmd, args[0]), rows)
	if err != nil {
		return cliError(err)
	}
	return printResult(cmd.OutOrStdout(), viper.GetString("output"), previewOutput{
		Format:    string(res.Format),
		Engine:    res.Engine,
		TotalRows: res.TotalRows,
		Columns:   res.Columns,
		Rows:      res.Rows,
	})
}

// cliError prefixes a job failure with its user message and code.
func cliError(err error) error {
	return fmt.Errorf("%s: %w", apperror.FormatUserError(err), err)
}
