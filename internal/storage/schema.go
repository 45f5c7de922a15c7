package storage

// SchemaVersion is recorded in store_meta
const SchemaVersion = "4"

// schemaSQL creates tables and views only. Secondary indexes are listed
// separately in indexes and built after the bulk load.
const schemaSQL = `
-- Entity tables. Every surrogate id is assigned by the loader, so ids
-- are written explicitly and stay stable across re-runs.
CREATE TABLE IF NOT EXISTS papers (
    id INTEGER PRIMARY KEY,
    paper_url TEXT UNIQUE NOT NULL,
    arxiv_id TEXT,
    nips_id TEXT,
    openreview_id TEXT,
    title TEXT,
    abstract TEXT,
    short_abstract TEXT,
    url_abs TEXT,
    url_pdf TEXT,
    proceeding TEXT,
    date TEXT, -- YYYY-MM-DD or NULL
    conference_url_abs TEXT,
    conference_url_pdf TEXT,
    conference TEXT,
    reproduces_paper TEXT
);

CREATE TABLE IF NOT EXISTS authors (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS method_areas (
    id INTEGER PRIMARY KEY,
    area_id TEXT UNIQUE NOT NULL,
    area_name TEXT UNIQUE NOT NULL
);

-- Category names are global: one row per name, bound to one area
CREATE TABLE IF NOT EXISTS method_categories (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    area_id INTEGER NOT NULL REFERENCES method_areas(id)
);

CREATE TABLE IF NOT EXISTS methods (
    id INTEGER PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    name TEXT,
    full_name TEXT,
    description TEXT,
    introduced_year INTEGER,
    num_papers INTEGER NOT NULL DEFAULT 0,
    paper_title TEXT,
    paper_arxiv_id TEXT,
    paper_url_abs TEXT,
    paper_url_pdf TEXT,
    paper_url TEXT,
    source_url TEXT,
    source_title TEXT,
    code_snippet_url TEXT
);

CREATE TABLE IF NOT EXISTS datasets (
    id INTEGER PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    name TEXT,
    full_name TEXT,
    homepage TEXT,
    description TEXT,
    short_description TEXT,
    parent_dataset TEXT,
    image TEXT
);

-- Evaluation tables; subtasks point at their parent table
CREATE TABLE IF NOT EXISTS evaluations (
    id INTEGER PRIMARY KEY,
    task TEXT UNIQUE NOT NULL,
    task_id INTEGER REFERENCES tasks(id),
    parent_id INTEGER REFERENCES evaluations(id),
    description TEXT,
    source_link TEXT
);

CREATE TABLE IF NOT EXISTS evaluation_categories (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

-- Subdatasets are leaderboards whose parent_id is another leaderboard
-- of the same evaluation.
CREATE TABLE IF NOT EXISTS evaluation_datasets (
    id INTEGER PRIMARY KEY,
    evaluation_id INTEGER NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
    parent_id INTEGER REFERENCES evaluation_datasets(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT,
    UNIQUE(evaluation_id, name)
);

-- kind is 'link' or 'citation'
CREATE TABLE IF NOT EXISTS evaluation_dataset_links (
    dataset_id INTEGER NOT NULL REFERENCES evaluation_datasets(id) ON DELETE CASCADE,
    kind TEXT NOT NULL CHECK (kind IN ('link', 'citation')),
    url TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (dataset_id, kind, url, title)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS evaluation_results (
    id INTEGER PRIMARY KEY,
    dataset_id INTEGER NOT NULL REFERENCES evaluation_datasets(id) ON DELETE CASCADE,
    model_name TEXT NOT NULL,
    paper_url TEXT NOT NULL DEFAULT '',
    paper_title TEXT,
    paper_date TEXT,
    uses_additional_data INTEGER NOT NULL DEFAULT 0,
    metrics TEXT,
    paper_id INTEGER REFERENCES papers(id) ON DELETE SET NULL,
    UNIQUE(dataset_id, model_name, paper_url)
);

-- One row per metric of a leaderboard row; values stay text since
-- leaderboards mix numbers, percentages and dashes.
CREATE TABLE IF NOT EXISTS evaluation_metrics (
    result_id INTEGER NOT NULL REFERENCES evaluation_results(id) ON DELETE CASCADE,
    metric_name TEXT NOT NULL,
    metric_value TEXT NOT NULL,
    PRIMARY KEY (result_id, metric_name)
) WITHOUT ROWID;

-- kind is 'code' or 'model'
CREATE TABLE IF NOT EXISTS evaluation_result_links (
    result_id INTEGER NOT NULL REFERENCES evaluation_results(id) ON DELETE CASCADE,
    kind TEXT NOT NULL CHECK (kind IN ('code', 'model')),
    url TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (result_id, kind, url, title)
) WITHOUT ROWID;

-- Code links are keyed by (paper_ref, repo_url); paper_ref is the title,
-- else the paper URL, else the arXiv id. paper_id is filled after load.
CREATE TABLE IF NOT EXISTS code_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    paper_ref TEXT NOT NULL,
    paper_url TEXT,
    paper_title TEXT,
    paper_arxiv_id TEXT,
    paper_url_abs TEXT,
    paper_url_pdf TEXT,
    repo_url TEXT NOT NULL,
    is_official INTEGER,
    mentioned_in_paper INTEGER,
    framework TEXT,
    paper_id INTEGER REFERENCES papers(id) ON DELETE SET NULL,
    paper_match TEXT CHECK (paper_match IS NULL OR paper_match IN ('url', 'title', 'arxiv')),
    UNIQUE(paper_ref, repo_url)
);

-- Junction tables
CREATE TABLE IF NOT EXISTS paper_authors (
    paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
    author_id INTEGER NOT NULL REFERENCES authors(id),
    author_order INTEGER NOT NULL,
    PRIMARY KEY (paper_id, author_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS paper_tasks (
    paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
    task_id INTEGER NOT NULL REFERENCES tasks(id),
    PRIMARY KEY (paper_id, task_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS paper_methods (
    paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
    method_id INTEGER NOT NULL REFERENCES methods(id) ON DELETE CASCADE,
    PRIMARY KEY (paper_id, method_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS method_categories_rel (
    method_id INTEGER NOT NULL REFERENCES methods(id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES method_categories(id),
    PRIMARY KEY (method_id, category_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS evaluation_categories_rel (
    evaluation_id INTEGER NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES evaluation_categories(id),
    PRIMARY KEY (evaluation_id, category_id)
) WITHOUT ROWID;

-- Bookkeeping
CREATE TABLE IF NOT EXISTS load_runs (
    run_id TEXT PRIMARY KEY NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'cancelled', 'failed')),
    summary TEXT
);

CREATE TABLE IF NOT EXISTS store_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);

-- A method's display area membership is the union of its categories' areas
CREATE VIEW IF NOT EXISTS method_area_membership AS
SELECT DISTINCT
    r.method_id,
    a.id AS area_id,
    a.area_id AS area_slug,
    a.area_name
FROM method_categories_rel r
JOIN method_categories c ON c.id = r.category_id
JOIN method_areas a ON a.id = c.area_id;

CREATE VIEW IF NOT EXISTS category_hierarchy AS
SELECT
    a.id AS area_id,
    a.area_name,
    c.id AS category_id,
    c.name AS category_name,
    COUNT(r.method_id) AS method_count
FROM method_areas a
LEFT JOIN method_categories c ON c.area_id = a.id
LEFT JOIN method_categories_rel r ON r.category_id = c.id
GROUP BY a.id, c.id;
`

// index is a secondary index built after the bulk load
type index struct {
	name  string
	table string
	expr  string
}

var indexes = []index{
	{"idx_papers_title", "papers", "title"},
	{"idx_papers_date", "papers", "date"},
	{"idx_papers_arxiv_id", "papers", "arxiv_id"},
	{"idx_authors_name", "authors", "name"},
	{"idx_tasks_name", "tasks", "name"},
	{"idx_methods_name", "methods", "name"},
	{"idx_methods_url", "methods", "url"},
	{"idx_methods_introduced_year", "methods", "introduced_year"},
	{"idx_method_categories_area", "method_categories", "area_id"},
	{"idx_datasets_name", "datasets", "name"},
	{"idx_datasets_url", "datasets", "url"},
	{"idx_evaluations_task_id", "evaluations", "task_id"},
	{"idx_evaluations_parent", "evaluations", "parent_id"},
	{"idx_evaluation_datasets_parent", "evaluation_datasets", "parent_id"},
	{"idx_evaluation_results_paper_url", "evaluation_results", "paper_url"},
	{"idx_evaluation_metrics_name", "evaluation_metrics", "metric_name"},
	{"idx_evaluation_result_links_url", "evaluation_result_links", "url"},
	{"idx_code_links_paper_url", "code_links", "paper_url"},
	{"idx_code_links_repo_url", "code_links", "repo_url"},
	{"idx_code_links_paper_title", "code_links", "paper_title"},
	{"idx_code_links_paper_arxiv_id", "code_links", "paper_arxiv_id"},
	{"idx_code_links_paper_id", "code_links", "paper_id"},
	{"idx_paper_authors_author", "paper_authors", "author_id"},
	{"idx_paper_tasks_task", "paper_tasks", "task_id"},
	{"idx_paper_methods_method", "paper_methods", "method_id"},
	{"idx_method_categories_rel_category", "method_categories_rel", "category_id"},
	{"idx_evaluation_categories_rel_category", "evaluation_categories_rel", "category_id"},
}

// countedTables are reported in the run summary, entities first
var countedTables = []string{
	"papers",
	"authors",
	"tasks",
	"methods",
	"method_areas",
	"method_categories",
	"datasets",
	"evaluations",
	"evaluation_categories",
	"evaluation_datasets",
	"evaluation_results",
	"code_links",
	"paper_authors",
	"paper_tasks",
	"paper_methods",
	"method_categories_rel",
	"evaluation_categories_rel",
	"evaluation_dataset_links",
	"evaluation_metrics",
	"evaluation_result_links",
}
