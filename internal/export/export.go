// Package export writes pipeline results as JSON, CSV or Parquet tables.
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"racecurve/internal/analysis"
	"racecurve/internal/store"
)

const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

var ErrUnknownFormat = eris.New("unknown export format")

// Tables is everything a run exports.
type Tables struct {
	Curves      []store.CurveRow
	Predictions []store.PredictionRow
	Validations []store.ValidationRow
	Coverage    []store.StageCoverageRow
	Cohort      analysis.ErrorStats
	PerAthlete  map[string]analysis.ErrorStats
}

// Write writes one file per table into dir and returns the paths written.
func Write(dir, format string, t Tables) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dir)
	}

	var paths []string
	add := func(name string, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, filepath.Join(dir, name+"."+format))
		return nil
	}

	if err := add("curves", writeTable(dir, "curves", format, curveRows(t.Curves))); err != nil {
		return paths, err
	}
	if err := add("predictions", writeTable(dir, "predictions", format, predictionRows(t.Predictions))); err != nil {
		return paths, err
	}
	if err := add("validations", writeTable(dir, "validations", format, validationRows(t.Validations))); err != nil {
		return paths, err
	}
	if err := add("summary", writeTable(dir, "summary", format, summaryRows(t.Cohort, t.PerAthlete))); err != nil {
		return paths, err
	}
	if err := add("stage_coverage", writeTable(dir, "stage_coverage", format, coverageRows(t.Coverage))); err != nil {
		return paths, err
	}

	zap.L().Info("exported run", zap.String("dir", dir), zap.String("format", format), zap.Int("files", len(paths)))
	return paths, nil
}

// WriteFeatures writes the per-activity feature table and the long-form
// best-effort table used for model training.
func WriteFeatures(dir, format string, features []analysis.Features) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dir)
	}
	rows, bests := featureRows(features)
	if err := writeTable(dir, "features", format, rows); err != nil {
		return nil, err
	}
	if err := writeTable(dir, "best_efforts", format, bests); err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "features."+format),
		filepath.Join(dir, "best_efforts."+format),
	}, nil
}

func writeTable[T any](dir, name, format string, rows []T) error {
	path := filepath.Join(dir, name+"."+format)
	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(path, rows)
	case FormatCSV:
		err = writeCSV(path, rows)
	case FormatParquet:
		err = writeParquet(path, rows)
	default:
		return eris.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func writeJSON[T any](path string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeCSV[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return err
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeParquet[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(T), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return err
	}
	return fw.Close()
}
