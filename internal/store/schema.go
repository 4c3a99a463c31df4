package store

const Schema = `
CREATE TABLE IF NOT EXISTS downloads (
	album_id TEXT PRIMARY KEY,
	folder TEXT NOT NULL,
	completed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS not_found (
	query TEXT PRIMARY KEY,
	last_checked DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
