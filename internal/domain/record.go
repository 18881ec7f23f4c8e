// Package domain contains the core business entities for Tribuna Storage.
package domain

import "time"

// EntityType names the kind of application record holding a file reference.
type EntityType string

// Known record kinds carrying stored-file references.
const (
	EntityDocument EntityType = "document"
	EntityActivity EntityType = "activity"
	EntityAvatar   EntityType = "avatar"
)

// FileRecord is the slice of an application record the storage core cares
// about: an opaque logical path plus its display metadata. The relational
// layer owns the rest of the row.
type FileRecord struct {
	ID         int64
	EntityType EntityType

	// FilePath is the persisted logical path, or nil when the record has no
	// stored file. Treated as an opaque string outside the path codec.
	FilePath *string

	// FileName is the original client file name, used for the
	// Content-Disposition header on download.
	FileName *string

	// FileType is the persisted content type hint.
	FileType *string

	UpdatedAt time.Time
}

// HasFile reports whether the record references a stored file.
func (r *FileRecord) HasFile() bool {
	return r.FilePath != nil && *r.FilePath != ""
}

// DiagnosticResult classifies one record's stored-file reference against the
// actual state of object storage. Transient, never persisted.
type DiagnosticResult struct {
	EntityType   EntityType `json:"entityType"`
	EntityID     int64      `json:"entityId"`
	ExpectedPath string     `json:"expectedPath"`
	Exists       bool       `json:"exists"`

	// Issue describes what is wrong, or is empty for healthy records.
	// Per-record check failures land here as well; they never abort a scan.
	Issue string `json:"issue,omitempty"`

	// Fixable is true when the reference can be repaired (legacy path
	// migration). Missing objects are unrecoverable: only the dangling
	// reference can be cleared.
	Fixable bool `json:"fixable"`
}

// CleanupReport summarizes a cleanup pass over dangling references.
type CleanupReport struct {
	// CleanedUp counts records whose path fields were (or would be) nulled,
	// keyed by entity type.
	CleanedUp map[EntityType]int `json:"cleanedUp"`

	// Changes lists every change made or previewed, so callers can inspect
	// a dry run before committing.
	Changes []string `json:"changes"`

	// DryRun reports whether records were actually modified.
	DryRun bool `json:"dryRun"`
}

// TotalCleaned returns the number of records cleaned across entity types.
func (r *CleanupReport) TotalCleaned() int {
	total := 0
	for _, n := range r.CleanedUp {
		total += n
	}
	return total
}

// MigrationReport summarizes a legacy-path migration pass.
type MigrationReport struct {
	// Migrated counts records whose path was (or would be) rewritten,
	// keyed by entity type.
	Migrated map[EntityType]int `json:"migrated"`

	// Changes lists every rewrite made or previewed.
	Changes []string `json:"changes"`

	// Skipped lists legacy references that could not be migrated and why:
	// no known mapping, or the mapped object is not in storage yet.
	Skipped []string `json:"skipped,omitempty"`

	// DryRun reports whether records were actually modified.
	DryRun bool `json:"dryRun"`
}

// TotalMigrated returns the number of records migrated across entity types.
func (r *MigrationReport) TotalMigrated() int {
	total := 0
	for _, n := range r.Migrated {
		total += n
	}
	return total
}

// HealthReport aggregates storage-reference health over all records.
type HealthReport struct {
	TotalRecords       map[EntityType]int `json:"totalRecords"`
	RecordsWithFiles   map[EntityType]int `json:"recordsWithFiles"`
	ObjectStorageFiles int                `json:"objectStorageFiles"`
	LegacyFiles        int                `json:"legacyFiles"`
	MissingFiles       int                `json:"missingFiles"`
	Issues             []DiagnosticResult `json:"issues"`
}
