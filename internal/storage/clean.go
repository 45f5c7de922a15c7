package storage

import (
	"fmt"
	"strings"
)

// deleteChunk bounds the number of ids bound into one DELETE statement
const deleteChunk = 500

// MethodText is the text of a method row checked by cleanup
type MethodText struct {
	ID          int64
	Name        string
	FullName    string
	Description string
}

// DatasetText is the text of a dataset row checked by cleanup
type DatasetText struct {
	ID          int64
	Name        string
	Homepage    string
	Description string
}

// EachMethodText calls fn for every method row
func (s *SQLiteStorage) EachMethodText(fn func(MethodText)) error {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(name, ''), COALESCE(full_name, ''), COALESCE(description, '')
		FROM methods ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query methods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MethodText
		if err := rows.Scan(&m.ID, &m.Name, &m.FullName, &m.Description); err != nil {
			return fmt.Errorf("failed to scan method: %w", err)
		}
		fn(m)
	}
	return rows.Err()
}

// EachDatasetText calls fn for every dataset row
func (s *SQLiteStorage) EachDatasetText(fn func(DatasetText)) error {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(name, ''), COALESCE(homepage, ''), COALESCE(description, '')
		FROM datasets ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d DatasetText
		if err := rows.Scan(&d.ID, &d.Name, &d.Homepage, &d.Description); err != nil {
			return fmt.Errorf("failed to scan dataset: %w", err)
		}
		fn(d)
	}
	return rows.Err()
}

// DeleteMethods removes methods by id. Their paper and category links
// go with them through ON DELETE CASCADE.
func (s *SQLiteStorage) DeleteMethods(ids []int64) (int64, error) {
	return s.deleteByID("methods", ids)
}

// DeleteDatasets removes datasets by id
func (s *SQLiteStorage) DeleteDatasets(ids []int64) (int64, error) {
	return s.deleteByID("datasets", ids)
}

func (s *SQLiteStorage) deleteByID(table string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int64
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, placeholders), args...)
		if err != nil {
			return 0, storageError("delete from "+table, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, storageError("commit delete from "+table, err)
	}
	return deleted, nil
}
