package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/repository"
)

// fileRecordRepository implements repository.FileRecordRepository for SQLite.
type fileRecordRepository struct {
	db *DB
}

// NewFileRecordRepository creates a new SQLite file record repository.
func NewFileRecordRepository(db *DB) repository.FileRecordRepository {
	return &fileRecordRepository{db: db}
}

// tableFor maps an entity type to its backing table.
func tableFor(entityType domain.EntityType) (string, error) {
	switch entityType {
	case domain.EntityDocument:
		return "documents", nil
	case domain.EntityActivity:
		return "activities", nil
	case domain.EntityAvatar:
		return "avatars", nil
	default:
		return "", fmt.Errorf("%w: %s", repository.ErrUnknownEntityType, entityType)
	}
}

// ListByEntityType returns every record of the given kind.
func (r *fileRecordRepository) ListByEntityType(ctx context.Context, entityType domain.EntityType) ([]*domain.FileRecord, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, file_path, file_name, file_type, updated_at FROM %s ORDER BY id`, table,
	)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entityType, err)
	}
	defer rows.Close()

	return scanRecords(rows, entityType)
}

// ListWithFiles returns every record of every kind carrying a stored path.
func (r *fileRecordRepository) ListWithFiles(ctx context.Context) ([]*domain.FileRecord, error) {
	kinds := []domain.EntityType{domain.EntityDocument, domain.EntityActivity, domain.EntityAvatar}

	var all []*domain.FileRecord
	for _, kind := range kinds {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}

		query := fmt.Sprintf(
			`SELECT id, file_path, file_name, file_type, updated_at
			 FROM %s WHERE file_path IS NOT NULL AND file_path != '' ORDER BY id`, table,
		)
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s records with files: %w", kind, err)
		}

		records, err := scanRecords(rows, kind)
		rows.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// ClearFileReference nulls the file fields of a record.
func (r *fileRecordRepository) ClearFileReference(ctx context.Context, entityType domain.EntityType, id int64) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`UPDATE %s SET file_path = NULL, file_name = NULL, file_type = NULL, updated_at = ? WHERE id = ?`,
		table,
	)
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to clear file reference on %s %d: %w", entityType, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// UpdateFilePath replaces the stored path of a record.
func (r *fileRecordRepository) UpdateFilePath(ctx context.Context, entityType domain.EntityType, id int64, path string) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`UPDATE %s SET file_path = ?, updated_at = ? WHERE id = ?`, table,
	)
	res, err := r.db.ExecContext(ctx, query, path, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update file path on %s %d: %w", entityType, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// scanRecords reads FileRecord rows. SQLite stores timestamps as RFC3339 text.
func scanRecords(rows *sql.Rows, entityType domain.EntityType) ([]*domain.FileRecord, error) {
	var records []*domain.FileRecord
	for rows.Next() {
		var (
			rec       domain.FileRecord
			updatedAt string
		)
		rec.EntityType = entityType
		if err := rows.Scan(&rec.ID, &rec.FilePath, &rec.FileName, &rec.FileType, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", entityType, err)
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			rec.UpdatedAt = t
		} else if t, err := time.Parse("2006-01-02 15:04:05", updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}
