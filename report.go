package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"racecurve/internal/export"
	"racecurve/internal/report"
	"racecurve/internal/service"
)

var reportOpts struct {
	runID  string
	export bool
	outDir string
	format string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a stored run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		d, err := service.LoadReport(ctx, db, reportOpts.runID)
		if err != nil {
			return err
		}

		if reportOpts.export {
			dir := reportOpts.outDir
			if dir == "" {
				dir = cfg.Output.Dir
			}
			format := reportOpts.format
			if format == "" {
				format = cfg.Output.Format
			}
			paths, err := export.Write(filepath.Join(dir, d.RunID), format, service.ExportTables(d))
			if err != nil {
				return err
			}
			zap.L().Info("exported", zap.Strings("files", paths))
		}

		return report.Render(os.Stdout, d, report.NewUnits(cfg.Display))
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.runID, "run", "", "run id (default: latest run)")
	f.BoolVar(&reportOpts.export, "export", false, "also write the run tables")
	f.StringVar(&reportOpts.outDir, "out", "", "export directory (default output.dir)")
	f.StringVar(&reportOpts.format, "format", "", "export format: json, csv or parquet (default output.format)")
	rootCmd.AddCommand(reportCmd)
}
