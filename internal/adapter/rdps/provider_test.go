package rdps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGrid is a 2x3 grid over the Sierra Nevada with longitudes in [0, 360).
func testGrid(base float64) []Row {
	var rows []Row
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			rows = append(rows, Row{
				X:         float64(x) * 10000,
				Y:         float64(y) * 10000,
				Latitude:  39 + float64(y)*0.1,
				Longitude: 239.8 + float64(x)*0.1,
				Value:     base + float64(y*3+x),
			})
		}
	}
	return rows
}

func writeCSVGz(t *testing.T, dir, name string, rows []Row) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	fmt.Fprintln(gz, "x,y,latitude,longitude,value")
	// Reverse order to show that layout comes from coordinates, not file order.
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		fmt.Fprintf(gz, "%v,%v,%v,%v,%v\n", r.X, r.Y, r.Latitude, r.Longitude, r.Value)
	}
	require.NoError(t, gz.Close())
}

func writeParquet(t *testing.T, dir, name string, rows []Row) {
	t.Helper()
	require.NoError(t, WriteLayer(filepath.Join(dir, name), FormatParquet, rows))
}

func TestProvider_Fields(t *testing.T) {
	dir := t.TempDir()
	// Older run that must be ignored.
	writeCSVGz(t, dir, "2024010100_SEEI_P001.csv.gz", testGrid(100))
	writeCSVGz(t, dir, "2024010100_TRSP_P001.csv.gz", testGrid(100))
	// Latest run, mixed formats, steps written out of order.
	writeCSVGz(t, dir, "2024010112_SEEI_P003.csv.gz", testGrid(20))
	writeParquet(t, dir, "2024010112_SEEI_P001.parquet", testGrid(10))
	writeParquet(t, dir, "2024010112_TRSP_P001.parquet", testGrid(1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o600))

	seeing, transparency, err := NewProvider(dir, discardLogger()).Fields(context.Background())
	require.NoError(t, err)

	run := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.VarSeeing, seeing.Name())
	assert.Equal(t, run, seeing.RunStart())
	assert.Equal(t, []time.Time{run.Add(time.Hour), run.Add(3 * time.Hour)}, seeing.Times())
	rows, cols := seeing.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)

	c := seeing.Cell(1, 4)
	assert.Equal(t, 1, c.Row)
	assert.Equal(t, 1, c.Col)
	assert.Equal(t, 24.0, c.Value)
	assert.InDelta(t, -120.1, c.Longitude, 1e-9)

	assert.Equal(t, domain.VarTransparency, transparency.Name())
	assert.Len(t, transparency.Times(), 1)
	assert.Equal(t, 1.0, transparency.Cell(0, 0).Value)
}

func TestProvider_Fields_Errors(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		_, _, err := NewProvider(t.TempDir(), discardLogger()).Fields(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedFeed)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := NewProvider(filepath.Join(t.TempDir(), "nope"), discardLogger()).Fields(context.Background())
		require.Error(t, err)
	})

	t.Run("latest run lacks transparency", func(t *testing.T) {
		dir := t.TempDir()
		writeCSVGz(t, dir, "2024010100_TRSP_P001.csv.gz", testGrid(1))
		writeCSVGz(t, dir, "2024010112_SEEI_P001.csv.gz", testGrid(1))
		_, _, err := NewProvider(dir, discardLogger()).Fields(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedFeed)
		assert.Contains(t, err.Error(), "TRSP")
	})

	t.Run("ragged grid", func(t *testing.T) {
		dir := t.TempDir()
		writeCSVGz(t, dir, "2024010112_SEEI_P001.csv.gz", testGrid(1)[:5])
		writeCSVGz(t, dir, "2024010112_TRSP_P001.csv.gz", testGrid(1))
		_, _, err := NewProvider(dir, discardLogger()).Fields(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedFeed)
	})

	t.Run("layer cells disagree", func(t *testing.T) {
		dir := t.TempDir()
		shifted := testGrid(1)
		shifted[0].X = 99
		writeCSVGz(t, dir, "2024010112_SEEI_P001.csv.gz", testGrid(1))
		writeCSVGz(t, dir, "2024010112_SEEI_P002.csv.gz", shifted)
		writeCSVGz(t, dir, "2024010112_TRSP_P001.csv.gz", testGrid(1))
		_, _, err := NewProvider(dir, discardLogger()).Fields(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedFeed)
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "2024010112_SEEI_P001.csv.gz"), []byte("plain"), 0o600))
		_, _, err := NewProvider(dir, discardLogger()).Fields(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedFeed)
	})
}

func TestReadCSVLayer_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, _ = io.Copy(gz, strings.NewReader("x,y,lat,lon,value\n0,0,1,1,1\n"))
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	_, err = readCSVLayer(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestLayerName(t *testing.T) {
	run := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	name, err := LayerName(run, domain.VarSeeing, 3*time.Hour, FormatCSVGz)
	require.NoError(t, err)
	assert.Equal(t, "2024010112_SEEI_P003.csv.gz", name)
	assert.True(t, layerNameRe.MatchString(name))

	name, err = LayerName(run, domain.VarTransparency, 48*time.Hour, FormatParquet)
	require.NoError(t, err)
	assert.Equal(t, "2024010112_TRSP_P048.parquet", name)

	_, err = LayerName(run, domain.VarCloudCover, 0, FormatCSVGz)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestWriteLayer_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []string{FormatCSVGz, FormatParquet} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, "layer."+format)
			require.NoError(t, WriteLayer(path, format, testGrid(2.5)))

			got, err := readLayer(path, format)
			require.NoError(t, err)
			assert.Equal(t, testGrid(2.5), got)
		})
	}

	require.Error(t, WriteLayer(filepath.Join(dir, "layer.nc"), "nc", testGrid(0)))
}
