package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/pricepack/internal/database"
	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	testutil "github.com/aristath/pricepack/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, ds *domain.Dataset) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	payload, err := json.Marshal(ds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))
	return path
}

func TestRun_ImportsDataset(t *testing.T) {
	file := writeDataset(t, testutil.FiveSKUCatalog())
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	require.NoError(t, run(context.Background(), file, dbPath, zerolog.Nop()))

	db, err := database.New(database.Config{Path: dbPath, Name: "catalog"})
	require.NoError(t, err)
	defer db.Close()

	version, err := catalog.NewSQLiteRepository(db.Conn(), zerolog.Nop()).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, version.LatestWeek)
	assert.Equal(t, 5, version.SKUs)
	assert.Equal(t, 5*12*2, version.PriceRows)
}

func TestReadDataset_Errors(t *testing.T) {
	_, err := readDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = readDataset(writeDataset(t, &domain.Dataset{}))
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}
