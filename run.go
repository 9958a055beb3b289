package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"racecurve/internal/ingest"
	"racecurve/internal/report"
	"racecurve/internal/service"
	"racecurve/internal/store"
)

const (
	sourceStore  = "store"
	sourceCSV    = "csv"
	sourceFIT    = "fit"
	sourceStrava = "strava"
)

var runOpts struct {
	source   string
	input    string
	races    string
	since    string
	persist  bool
	export   bool
	outDir   string
	format   string
	noReport bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit curves, predict races and validate against results",
	Long: "Runs every athlete through normalize, features, curve fit and prediction, then " +
		"validates predictions that have an actual result in the races file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		source, err := buildSource(ctx, db)
		if err != nil {
			return err
		}

		races, err := loadRaces(ctx, db)
		if err != nil {
			return err
		}

		opts, err := service.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		pipeline, err := service.NewPipeline(source, opts)
		if err != nil {
			return err
		}

		progress := make(chan service.Progress, opts.Workers)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range progress {
				fields := []zap.Field{
					zap.String("athlete", p.AthleteID),
					zap.Stringer("stage", p.Stage),
					zap.Int("completed", p.Completed),
					zap.Int("total", p.Total),
				}
				if p.Err != nil {
					fields = append(fields, zap.Error(p.Err))
				}
				zap.L().Info("athlete finished", fields...)
			}
		}()

		result, err := pipeline.Run(ctx, races, progress)
		<-done
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if runOpts.persist {
			snapshot, err := yaml.Marshal(cfg)
			if err != nil {
				return eris.Wrap(err, "encode config snapshot")
			}
			if err := service.Persist(ctx, db, result, string(snapshot)); err != nil {
				return err
			}
		}

		if runOpts.export {
			format := runOpts.format
			if format == "" {
				format = cfg.Output.Format
			}
			dir := runOpts.outDir
			if dir == "" {
				dir = cfg.Output.Dir
			}
			paths, err := service.ExportRun(dir, format, result)
			if err != nil {
				return err
			}
			zap.L().Info("exported", zap.Strings("files", paths))
		}

		if runOpts.noReport {
			return nil
		}
		return report.Render(os.Stdout, service.ReportData(result), report.NewUnits(cfg.Display))
	},
}

func buildSource(ctx context.Context, db *store.DB) (service.Source, error) {
	switch runOpts.source {
	case sourceStore:
		return service.StoreSource{DB: db}, nil
	case sourceCSV:
		if runOpts.input == "" {
			return nil, eris.New("--input is required for the csv source")
		}
		return service.NewCSVSource(runOpts.input)
	case sourceFIT:
		if runOpts.input == "" {
			return nil, eris.New("--input is required for the fit source")
		}
		return service.FITSource{Root: runOpts.input}, nil
	case sourceStrava:
		after, err := parseSince(runOpts.since)
		if err != nil {
			return nil, err
		}
		fetcher, err := newStravaFetcher(ctx, cfg, db)
		if err != nil {
			return nil, err
		}
		return service.NewStravaSource(fetcher, after), nil
	default:
		return nil, eris.Errorf("unknown --source %q (store, csv, fit, strava)", runOpts.source)
	}
}

// loadRaces reads --races when given and otherwise uses the races saved by
// import.
func loadRaces(ctx context.Context, db *store.DB) ([]ingest.RaceEntry, error) {
	if runOpts.races == "" {
		return db.LoadRaces(ctx)
	}
	return ingest.ReadRacesFile(runOpts.races)
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.source, "source", sourceStore, "activity source: store, csv, fit or strava")
	f.StringVar(&runOpts.input, "input", "", "samples CSV file (csv) or <athlete>/*.fit directory (fit)")
	f.StringVar(&runOpts.races, "races", "", "races CSV file (default: races saved by import)")
	f.StringVar(&runOpts.since, "since", "", "strava source: only activities after YYYY-MM-DD")
	f.BoolVar(&runOpts.persist, "persist", true, "save the run to the store")
	f.BoolVar(&runOpts.export, "export", false, "write result tables to the output directory")
	f.StringVar(&runOpts.outDir, "out", "", "export directory (default output.dir)")
	f.StringVar(&runOpts.format, "format", "", "export format: json, csv or parquet (default output.format)")
	f.BoolVar(&runOpts.noReport, "no-report", false, "do not print the report")
	rootCmd.AddCommand(runCmd)
}
