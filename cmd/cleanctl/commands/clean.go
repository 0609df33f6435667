package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Clean a local file into the storage directory",
	Long: `Clean a local CSV or Excel file with the same loader and transforms the
service uses. The source file is never modified. Use --out to copy the
cleaned workbook somewhere else as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	flags := cleanCmd.Flags()
	flags.String("suffix", transform.DefaultSuffix, "suffix appended to every column name")
	flags.String("out", "", "also copy the cleaned workbook to this path")
}

func runClean(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := args[0]
	format, err := tabular.ParseFormat(src)
	if err != nil {
		return cliError(err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	suffix, _ := cmd.Flags().GetString("suffix")

	start := time.Now()
	log := logging.WithFields(ctx, "source", src, "format", format)

	ds, loadInfo, err := tabular.NewLoader().Load(ctx, src, format)
	if err != nil {
		return cliError(err)
	}
	log.Info("file loaded", "engine", loadInfo.Engine, "rows", ds.NumRows(), "columns", ds.NumCols())

	ds, report, err := transform.Default(suffix).Apply(ctx, ds)
	if err != nil {
		return cliError(err)
	}

	out, err := store.Persist(ctx, ds)
	if err != nil {
		return cliError(err)
	}

	summary := newJobSummary(src, report, info.Size(), out.Size, time.Since(start))
	summary.FileID = out.ID
	summary.Path = out.Path
	summary.Format = string(format)
	summary.Engine = loadInfo.Engine
	summary.Encoding = loadInfo.Encoding

	if dst, _ := cmd.Flags().GetString("out"); dst != "" {
		if err := copyFile(out.Path, dst); err != nil {
			return fmt.Errorf("copy cleaned file: %w", err)
		}
		summary.CopiedTo = dst
	}

	return printResult(cmd.OutOrStdout(), viper.GetString("output"), summary)
}

// copyFile copies src to dst, creating dst's directory if needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
