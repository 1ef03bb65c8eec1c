package importer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/store"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestReadFile_CSV(t *testing.T) {
	p := writeFile(t, t.TempDir(), "report.csv",
		"\ufeff Package Number ,Carrier,Tracking number,\n"+
			"P1,DHL,JD1,\n"+
			",,,\n"+
			"P2,Posti,\"JJ,2\"\n")

	m, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Package Number", "Carrier", "Tracking number"},
		{"P1", "DHL", "JD1"},
		{"P2", "Posti", "JJ,2"},
	}, m)
}

func TestReadCSV_SniffsDelimiter(t *testing.T) {
	cases := []struct {
		name string
		body string
		want [][]string
	}{
		{
			name: "semicolon",
			body: "Carrier;Tracking number;Note\nPosti;JJFI1;\"a,b\"\n",
			want: [][]string{{"Carrier", "Tracking number", "Note"}, {"Posti", "JJFI1", "a,b"}},
		},
		{
			name: "tab",
			body: "Carrier\tTracking number\nDHL\tJD1\n",
			want: [][]string{{"Carrier", "Tracking number"}, {"DHL", "JD1"}},
		},
		{
			name: "quoted semicolons in comma header",
			body: "\"a;b;c\",Carrier\nx,GLS\n",
			want: [][]string{{"a;b;c", "Carrier"}, {"x", "GLS"}},
		},
		{
			name: "single column",
			body: "Carrier\nDHL\n",
			want: [][]string{{"Carrier"}, {"DHL"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ReadCSV(strings.NewReader(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, m)
		})
	}
}

func TestReadFile_XLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "report.xlsx")
	f := excelize.NewFile()
	for i, row := range [][]string{{"Carrier", "Tracking number"}, {"GLS", "00042"}} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	m, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Carrier", "Tracking number"}, {"GLS", "00042"}}, m)
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFile(writeFile(t, dir, "notes.txt", "x"))
	assert.True(t, model.IsCode(err, model.ErrCodeUnsupportedFile))

	_, err = ReadFile(writeFile(t, dir, "empty.csv", ""))
	assert.True(t, model.IsCode(err, model.ErrCodeEmptyImport))
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "a.csv", "x")
	newer := writeFile(t, dir, "b.XLSX", "x")
	writeFile(t, dir, "c.txt", "x")
	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	got, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	_, err = FindLatest(t.TempDir())
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := writeFile(t, t.TempDir(), "r.csv", "Package Number,Carrier\nP1,DHL\nP2,GLS\n")

	m, n, err := New(s, nil).ImportFile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	stored, err := s.ReadTable(ctx, sheet.TableImportLatest)
	require.NoError(t, err)
	assert.Equal(t, m, stored)
}

func TestImportAdhoc(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	dir := t.TempDir()
	p := writeFile(t, dir, "adhoc.csv", "Ref,Forwarder,Barcode\n1,DHL,JD1\n2,Bring,BR2\n")

	n, err := New(s, nil).ImportAdhoc(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := s.ReadTable(ctx, sheet.TableAdhoc)
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, "Carrier", m[0][0])
	assert.Equal(t, sheet.RefreshColumns, m[0][2:])
	assert.Equal(t, []string{"Bring", "BR2"}, m[2][:2])

	_, err = New(s, nil).ImportAdhoc(ctx, writeFile(t, dir, "bad.csv", "A,B\n1,2\n"))
	assert.True(t, model.IsCode(err, model.ErrCodeMissingColumns))
}
