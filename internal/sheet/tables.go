package sheet

import "context"

// Tables is a store of named header-first matrices. ReadTable returns nil
// for a table that does not exist.
type Tables interface {
	ReadTable(ctx context.Context, name string) ([][]string, error)
	WriteTable(ctx context.Context, name string, m [][]string) error
	DeleteTable(ctx context.Context, name string) error
	TableNames(ctx context.Context) ([]string, error)
}

// Well-known table names.
const (
	TablePackages          = "Packages"
	TableArchive           = "Packages_Archive"
	TablePending           = "Pending"
	TableRunLog            = "Run_All_Log"
	TableAdhoc             = "Adhoc_Tracking"
	TableImportLatest      = "Import_Latest"
	TableArchiveDuplicates = "Archive_Duplicates"
)
