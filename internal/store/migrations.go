package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Authentication (singleton row)
		`CREATE TABLE IF NOT EXISTS auth (
			provider TEXT PRIMARY KEY,
			athlete_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Raw activities as imported, before normalization
		`CREATE TABLE IF NOT EXISTS activities (
			athlete_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			source TEXT NOT NULL,
			start_time TEXT,
			distance_unit TEXT NOT NULL,
			elevation_unit TEXT NOT NULL,
			sample_count INTEGER NOT NULL,
			imported_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (athlete_id, activity_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_start_time ON activities(start_time)`,

		// Raw samples in source units
		`CREATE TABLE IF NOT EXISTS samples (
			athlete_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp TEXT,
			elapsed_s REAL,
			distance REAL,
			elevation REAL,
			heartrate REAL,
			speed REAL,
			temperature_c REAL,
			PRIMARY KEY (athlete_id, activity_id, seq),
			FOREIGN KEY (athlete_id, activity_id) REFERENCES activities(athlete_id, activity_id) ON DELETE CASCADE
		)`,

		// Race targets, with ground truth when known
		`CREATE TABLE IF NOT EXISTS races (
			athlete_id TEXT NOT NULL,
			race TEXT NOT NULL,
			date TEXT NOT NULL,
			distance_m REAL NOT NULL,
			elevation_gain_m REAL,
			elevation_loss_m REAL,
			temperature_c REAL,
			actual_seconds REAL,
			PRIMARY KEY (athlete_id, race, date)
		)`,

		// Pipeline runs
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			athletes INTEGER NOT NULL DEFAULT 0,
			config TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS curves (
			run_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			family TEXT NOT NULL,
			loss TEXT NOT NULL,
			cs REAL NOT NULL,
			d_prime REAL NOT NULL,
			k REAL,
			params TEXT NOT NULL,
			covariance TEXT NOT NULL,
			residual_scale REAL,
			robust_r2 REAL,
			iterations INTEGER,
			converged INTEGER NOT NULL,
			min_duration_s REAL,
			max_duration_s REAL,
			vo2 REAL,
			vo2_model TEXT,
			PRIMARY KEY (run_id, athlete_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			run_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			race TEXT NOT NULL,
			race_date TEXT NOT NULL DEFAULT '',
			distance_m REAL NOT NULL,
			base_seconds REAL NOT NULL,
			predicted_seconds REAL NOT NULL,
			lower_seconds REAL NOT NULL,
			upper_seconds REAL NOT NULL,
			pace_s_per_km REAL,
			interval_method TEXT NOT NULL,
			interval_level REAL NOT NULL,
			adjustments TEXT,
			vdot REAL,
			reference_seconds REAL,
			confidence TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			out_of_domain INTEGER NOT NULL,
			unconverged_curve INTEGER NOT NULL,
			PRIMARY KEY (run_id, athlete_id, race, race_date),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS validations (
			run_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			race TEXT NOT NULL,
			race_date TEXT NOT NULL,
			distance_m REAL NOT NULL,
			predicted_seconds REAL NOT NULL,
			actual_seconds REAL NOT NULL,
			lower_seconds REAL NOT NULL,
			upper_seconds REAL NOT NULL,
			interval_level REAL NOT NULL,
			error_seconds REAL NOT NULL,
			pct_error REAL NOT NULL,
			in_interval INTEGER NOT NULL,
			actual_percentile REAL,
			predicted_percentile REAL,
			PRIMARY KEY (run_id, athlete_id, race, race_date),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		// Stage reached per athlete, and the failure that stopped it
		`CREATE TABLE IF NOT EXISTS athlete_stages (
			run_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			activities INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			failure TEXT,
			PRIMARY KEY (run_id, athlete_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS stage_coverage (
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			position INTEGER NOT NULL,
			fraction REAL NOT NULL,
			PRIMARY KEY (run_id, stage),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		// Sync State (key-value store for import tracking)
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
