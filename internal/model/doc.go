// Package model provides the shared types of parceltrack.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Per-record failures are status strings, never Go errors
//   - Structural failures are *Error values carrying a Code
//   - Table cells are strings; timestamps use CellTimeLayout
package model
