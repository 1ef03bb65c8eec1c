package pending

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.WriteTable(ctx, sheet.TablePackages, [][]string{
		{"Package Number", "Carrier", "Tracking number", "Status"},
		{"P1", "DHL", "JD1", "In transit"},
		{"P2", "Posti", "JJ2", "Toimitettu"},
		{"", "GLS", "G3", ""},
		{"P4", "GLS", "G4", ""},
	}))
	require.NoError(t, s.WriteTable(ctx, sheet.TableArchive, [][]string{
		{"Package Number", "Carrier", "Delivered date", "ArchivedOn"},
		{"P5", "Bring", "", "2024-01-01 00:00:00"},
		{"P6", "DHL", "2024-01-02", "2024-01-03 00:00:00"},
		{"P4", "GLS", "", "2024-01-04 00:00:00"},
	}))

	rep, err := New(s, nil).Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sources)
	assert.Equal(t, 7, rep.Scanned)
	assert.Equal(t, 2, rep.Delivered)
	assert.Equal(t, 1, rep.NoKey)
	assert.Equal(t, 3, rep.Rows)

	m, err := s.ReadTable(ctx, sheet.TablePending)
	require.NoError(t, err)
	require.Len(t, m, 4)

	wantHdr := append([]string{"Package Number", "Carrier", "Tracking number", "Status", "Delivered date", "ArchivedOn"}, sheet.RefreshColumns...)
	assert.Equal(t, wantHdr, m[0])

	keys := []string{m[1][0], m[2][0], m[3][0]}
	assert.Equal(t, []string{"P1", "P4", "P5"}, keys)
	assert.Equal(t, "2024-01-04 00:00:00", m[2][5], "archive row wins for P4")
	for _, row := range m[1:] {
		assert.Len(t, row, len(wantHdr))
	}
}

func TestBuild_NoSources(t *testing.T) {
	_, err := New(newStore(t), nil).Build(context.Background())
	assert.True(t, model.IsCode(err, model.ErrCodeNoRows))
}
