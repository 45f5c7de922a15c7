package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DropIndexes removes the secondary indexes so a load into an existing
// store does not maintain them row by row. CreateIndexes restores them.
func (s *SQLiteStorage) DropIndexes() error {
	for _, idx := range indexes {
		if _, err := s.db.Exec("DROP INDEX IF EXISTS " + idx.name); err != nil {
			return storageError("drop index "+idx.name, err)
		}
	}
	return nil
}

// CreateIndexes builds every secondary index. It runs once, after all
// batches are written.
func (s *SQLiteStorage) CreateIndexes() error {
	start := time.Now()
	for _, idx := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.expr)
		if _, err := s.db.Exec(stmt); err != nil {
			return storageError("create index "+idx.name, err)
		}
	}
	slog.Info("Indexes created", "count", len(indexes), "duration", time.Since(start))
	return nil
}

// IndexNames lists the secondary indexes present in the store
func (s *SQLiteStorage) IndexNames() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'index' AND name LIKE 'idx_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LinkResolution counts code links matched by each join key
type LinkResolution struct {
	ByURL     int64 `json:"by_url" yaml:"by_url"`
	ByTitle   int64 `json:"by_title" yaml:"by_title"`
	ByArxivID int64 `json:"by_arxiv_id" yaml:"by_arxiv_id"`
	Unmatched int64 `json:"unmatched" yaml:"unmatched"`
}

// codeLinkJoins are tried in order; each only touches links still
// unmatched, so the first key that matches wins. Title and arXiv id are
// not unique on papers; the lowest paper id is taken.
var codeLinkJoins = []struct {
	match string
	query string
}{
	{"url", `
		UPDATE code_links
		SET paper_id = (SELECT p.id FROM papers p WHERE p.paper_url = code_links.paper_url),
		    paper_match = 'url'
		WHERE paper_id IS NULL AND paper_url IS NOT NULL
		  AND EXISTS (SELECT 1 FROM papers p WHERE p.paper_url = code_links.paper_url)`},
	{"title", `
		UPDATE code_links
		SET paper_id = (SELECT MIN(p.id) FROM papers p WHERE p.title = code_links.paper_title),
		    paper_match = 'title'
		WHERE paper_id IS NULL AND paper_title IS NOT NULL
		  AND EXISTS (SELECT 1 FROM papers p WHERE p.title = code_links.paper_title)`},
	{"arxiv", `
		UPDATE code_links
		SET paper_id = (SELECT MIN(p.id) FROM papers p WHERE p.arxiv_id = code_links.paper_arxiv_id),
		    paper_match = 'arxiv'
		WHERE paper_id IS NULL AND paper_arxiv_id IS NOT NULL
		  AND EXISTS (SELECT 1 FROM papers p WHERE p.arxiv_id = code_links.paper_arxiv_id)`},
}

// ResolveCodeLinks joins code links to papers by URL, then title, then
// arXiv id. Links already matched by an earlier run keep their match.
// Unmatched links stay in the table with a NULL paper_id.
func (s *SQLiteStorage) ResolveCodeLinks() (LinkResolution, error) {
	var res LinkResolution
	for _, j := range codeLinkJoins {
		r, err := s.db.Exec(j.query)
		if err != nil {
			return res, storageError("resolve code links by "+j.match, err)
		}
		n, _ := r.RowsAffected()
		switch j.match {
		case "url":
			res.ByURL = n
		case "title":
			res.ByTitle = n
		case "arxiv":
			res.ByArxivID = n
		}
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM code_links WHERE paper_id IS NULL").Scan(&res.Unmatched); err != nil {
		return res, storageError("count unmatched code links", err)
	}
	return res, nil
}

// ResolveEvaluationResults links leaderboard rows to papers by URL and
// returns how many were linked.
func (s *SQLiteStorage) ResolveEvaluationResults() (int64, error) {
	r, err := s.db.Exec(`
		UPDATE evaluation_results
		SET paper_id = (SELECT p.id FROM papers p WHERE p.paper_url = evaluation_results.paper_url)
		WHERE paper_id IS NULL AND paper_url <> ''
		  AND EXISTS (SELECT 1 FROM papers p WHERE p.paper_url = evaluation_results.paper_url)
	`)
	if err != nil {
		return 0, storageError("resolve evaluation results", err)
	}
	n, _ := r.RowsAffected()
	return n, nil
}

// RecountMethodPapers replaces methods.num_papers with the number of
// linked papers in the store.
func (s *SQLiteStorage) RecountMethodPapers() (int64, error) {
	r, err := s.db.Exec(`
		UPDATE methods
		SET num_papers = (SELECT COUNT(*) FROM paper_methods pm WHERE pm.method_id = methods.id)
		WHERE num_papers <> (SELECT COUNT(*) FROM paper_methods pm WHERE pm.method_id = methods.id)
	`)
	if err != nil {
		return 0, storageError("recount method papers", err)
	}
	n, _ := r.RowsAffected()
	return n, nil
}

// Analyze refreshes the query planner statistics
func (s *SQLiteStorage) Analyze() error {
	if _, err := s.db.Exec("ANALYZE"); err != nil {
		return storageError("analyze", err)
	}
	return nil
}

// CategorySummary is one category with its method count
type CategorySummary struct {
	Name    string `json:"name" yaml:"name"`
	Methods int64  `json:"methods" yaml:"methods"`
}

// AreaSummary is one area with its categories
type AreaSummary struct {
	Area       string            `json:"area" yaml:"area"`
	Slug       string            `json:"area_id" yaml:"area_id"`
	Categories []CategorySummary `json:"categories" yaml:"categories"`
	Methods    int64             `json:"methods" yaml:"methods"` // distinct methods in the area
}

// HierarchySummary returns the area → category tree with method counts
func (s *SQLiteStorage) HierarchySummary() ([]AreaSummary, error) {
	rows, err := s.db.Query(`
		SELECT a.id, a.area_name, a.area_id, c.name, COUNT(r.method_id)
		FROM method_areas a
		LEFT JOIN method_categories c ON c.area_id = a.id
		LEFT JOIN method_categories_rel r ON r.category_id = c.id
		GROUP BY a.id, c.id
		ORDER BY a.id, COUNT(r.method_id) DESC, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer rows.Close()

	var areas []AreaSummary
	var lastID int64 = -1
	for rows.Next() {
		var id, n int64
		var name, slug string
		var category sql.NullString
		if err := rows.Scan(&id, &name, &slug, &category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy row: %w", err)
		}
		if id != lastID {
			areas = append(areas, AreaSummary{Area: name, Slug: slug})
			lastID = id
		}
		if category.Valid {
			a := &areas[len(areas)-1]
			a.Categories = append(a.Categories, CategorySummary{Name: category.String, Methods: n})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// distinct method counts per area, via the membership view
	counts := make(map[string]int64)
	crows, err := s.db.Query("SELECT area_slug, COUNT(DISTINCT method_id) FROM method_area_membership GROUP BY area_slug")
	if err != nil {
		return nil, fmt.Errorf("failed to query area membership: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var slug string
		var n int64
		if err := crows.Scan(&slug, &n); err != nil {
			return nil, fmt.Errorf("failed to scan area membership: %w", err)
		}
		counts[slug] = n
	}
	for i := range areas {
		areas[i].Methods = counts[areas[i].Slug]
	}
	return areas, crows.Err()
}

// MethodAreas returns the display areas of a method: the union of its
// categories' areas.
func (s *SQLiteStorage) MethodAreas(methodID int64) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT area_name FROM method_area_membership WHERE method_id = ? ORDER BY area_id", methodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query method areas: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan method area: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// FileSize returns the size of the database file in bytes
func (s *SQLiteStorage) FileSize() (int64, error) {
	var pages, size int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pages); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to read page size: %w", err)
	}
	return pages * size, nil
}
