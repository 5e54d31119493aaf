package rdps

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

// Row is one grid cell of a decoded layer.
type Row struct {
	X         float64 `parquet:"x"`
	Y         float64 `parquet:"y"`
	Latitude  float64 `parquet:"latitude"`
	Longitude float64 `parquet:"longitude"`
	Value     float64 `parquet:"value"`
}

var layerColumns = []string{"x", "y", "latitude", "longitude", "value"}

// Layer file formats.
const (
	FormatCSVGz   = "csv.gz"
	FormatParquet = "parquet"
)

// LayerName returns the cache file name for one variable at one step of run.
func LayerName(run time.Time, variable string, step time.Duration, format string) (string, error) {
	for code, v := range variables {
		if v == variable {
			return fmt.Sprintf("%s_%s_P%03d.%s", run.UTC().Format("2006010215"), code, int(step.Hours()), format), nil
		}
	}
	return "", fmt.Errorf("%w: no model code for %q", domain.ErrValidation, variable)
}

// WriteLayer writes rows to path in the given format.
func WriteLayer(path, format string, rows []Row) error {
	switch format {
	case FormatCSVGz:
		return writeCSVLayer(path, rows)
	case FormatParquet:
		return writeParquetLayer(path, rows)
	}
	return fmt.Errorf("unsupported layer format %q", format)
}

func writeCSVLayer(path string, rows []Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	if err := w.Write(layerColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatFloat(r.X, 'f', -1, 64),
			strconv.FormatFloat(r.Y, 'f', -1, 64),
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return gz.Close()
}

func writeParquetLayer(path string, rows []Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := parquet.NewGenericWriter[Row](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("parquet write: %w", err)
	}
	return w.Close()
}

func readLayer(path, format string) ([]Row, error) {
	switch format {
	case FormatCSVGz:
		return readCSVLayer(path)
	case FormatParquet:
		return readParquetLayer(path)
	}
	return nil, fmt.Errorf("unsupported layer format %q", format)
}

func readCSVLayer(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, len(layerColumns))
	for i, name := range layerColumns {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = c
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for i, c := range cols {
			if c >= len(rec) {
				return nil, fmt.Errorf("line %d: short record", line)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, layerColumns[i], err)
			}
			vals[i] = v
		}
		rows = append(rows, Row{X: vals[0], Y: vals[1], Latitude: vals[2], Longitude: vals[3], Value: vals[4]})
	}
	return rows, nil
}

func readParquetLayer(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	rows := make([]Row, 0, pf.NumRows())
	buf := make([]Row, 1024)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet read: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}
