package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"racecurve/internal/ingest"
	"racecurve/internal/service"
)

var importOpts struct {
	csv   string
	fit   string
	races string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import activity samples and races into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if importOpts.csv == "" && importOpts.fit == "" && importOpts.races == "" {
			return eris.New("nothing to import: pass --csv, --fit or --races")
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		var activities []ingest.RawActivity
		if importOpts.csv != "" {
			rows, err := ingest.ReadSamplesFile(importOpts.csv)
			if err != nil {
				return err
			}
			activities = append(activities, rows...)
		}
		if importOpts.fit != "" {
			athletes, err := ingest.FITDirAthletes(importOpts.fit)
			if err != nil {
				return err
			}
			for _, id := range athletes {
				got, failures, err := ingest.ReadFITDir(importOpts.fit, id)
				if err != nil {
					return err
				}
				for _, f := range failures {
					zap.L().Warn("skipping unreadable FIT file", zap.String("athlete", id), zap.Error(f))
				}
				activities = append(activities, got...)
			}
		}
		if len(activities) > 0 {
			n, err := service.ImportActivities(ctx, db, activities)
			if err != nil {
				return eris.Wrap(err, "import activities")
			}
			zap.L().Info("imported activities", zap.Int("count", n))
		}

		if importOpts.races != "" {
			races, err := ingest.ReadRacesFile(importOpts.races)
			if err != nil {
				return err
			}
			if err := db.SaveRaces(ctx, races); err != nil {
				return eris.Wrap(err, "import races")
			}
			zap.L().Info("imported races", zap.Int("count", len(races)))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importOpts.csv, "csv", "", "samples CSV file")
	importCmd.Flags().StringVar(&importOpts.fit, "fit", "", "directory of <athlete>/*.fit files")
	importCmd.Flags().StringVar(&importOpts.races, "races", "", "races CSV file")
	rootCmd.AddCommand(importCmd)
}
