package workbook

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/sheet"
)

var packages = [][]string{
	{"Package Number", "Carrier", "Tracking number"},
	{"P1", "DHL", "00123"},
	{"P2", "Posti", "JJFI2"},
}

func TestWorkbook_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tables.xlsx")

	wb, err := Open(path)
	require.NoError(t, err)
	names, err := wb.TableNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, wb.WriteTable(ctx, sheet.TablePackages, packages))
	require.NoError(t, wb.WriteTable(ctx, sheet.TableArchive, [][]string{{"Package Number"}, {"P0"}}))
	require.NoError(t, wb.Close())

	wb, err = Open(path)
	require.NoError(t, err)
	defer wb.Close()

	got, err := wb.ReadTable(ctx, sheet.TablePackages)
	require.NoError(t, err)
	assert.Equal(t, packages, got, "numeric-looking codes stay strings")

	names, err = wb.TableNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sheet.TablePackages, sheet.TableArchive}, names)

	missing, err := wb.ReadTable(ctx, "Nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkbook_OverwriteShrinks(t *testing.T) {
	ctx := context.Background()
	wb, err := Open(filepath.Join(t.TempDir(), "t.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	require.NoError(t, wb.WriteTable(ctx, "T", packages))
	require.NoError(t, wb.WriteTable(ctx, "T", packages[:2]))
	got, err := wb.ReadTable(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, packages[:2], got)
}

func TestWorkbook_WriteTablesSavesAllSheets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "t.xlsx")
	wb, err := Open(path)
	require.NoError(t, err)

	archive := [][]string{{"Package Number"}, {"P0"}}
	require.NoError(t, wb.WriteTables(ctx, map[string][][]string{
		sheet.TablePackages: packages,
		sheet.TableArchive:  archive,
	}))
	require.NoError(t, wb.Close())

	wb, err = Open(path)
	require.NoError(t, err)
	defer wb.Close()
	names, err := wb.TableNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sheet.TablePackages, sheet.TableArchive}, names)
	got, err := wb.ReadTable(ctx, sheet.TableArchive)
	require.NoError(t, err)
	assert.Equal(t, archive, got)
}

func TestWorkbook_DeleteLastTable(t *testing.T) {
	ctx := context.Background()
	wb, err := Open(filepath.Join(t.TempDir(), "t.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	require.NoError(t, wb.WriteTable(ctx, "Only", packages))
	require.NoError(t, wb.DeleteTable(ctx, "Only"))
	require.NoError(t, wb.DeleteTable(ctx, "Only"))

	names, err := wb.TableNames(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "Only")
}

func TestExport_ReadsBackFirstSheet(t *testing.T) {
	ctx := context.Background()
	src, err := Open(filepath.Join(t.TempDir(), "src.xlsx"))
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.WriteTable(ctx, sheet.TablePackages, packages))

	var buf bytes.Buffer
	n, err := Export(ctx, src, []string{"Missing", sheet.TablePackages}, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := ReadFirstSheet(&buf)
	require.NoError(t, err)
	assert.Equal(t, packages, rows)
}
