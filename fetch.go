package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"racecurve/internal/service"
	"racecurve/internal/store"
)

var fetchFull bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download new Strava runs into the store",
	Long:  "Downloads runs with their streams once, starting after the newest run fetched so far.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		if fetchFull {
			if err := db.SetSyncState(ctx, store.KeyLastFetch, ""); err != nil {
				return err
			}
		}

		fetcher, err := newStravaFetcher(ctx, cfg, db)
		if err != nil {
			return err
		}

		res, err := service.NewSyncService(fetcher, db, store.KeyLastFetch).Sync(ctx, nil)
		if err != nil {
			return err
		}
		for _, e := range res.Errors {
			zap.L().Warn("fetch error", zap.Error(e))
		}
		fmt.Fprintf(os.Stderr, "fetched %d runs, stored %d\n", res.ActivitiesFetched, res.ActivitiesStored)
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchFull, "full", false, "ignore the fetch cursor and download everything")
	rootCmd.AddCommand(fetchCmd)
}
