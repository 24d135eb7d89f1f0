package cachestore

// schema is applied on every Open via CREATE TABLE/INDEX IF NOT EXISTS,
// so opening an existing database is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	key TEXT PRIMARY KEY,
	file TEXT,
	present INTEGER NOT NULL DEFAULT 0,
	artist TEXT,
	title TEXT,
	album TEXT,
	genre TEXT,
	key_musical TEXT,
	year TEXT,
	tracknumber TEXT,
	comment TEXT,
	color TEXT,
	bpm REAL,
	rating INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album);
CREATE INDEX IF NOT EXISTS idx_tracks_genre ON tracks(genre);
CREATE INDEX IF NOT EXISTS idx_tracks_bpm ON tracks(bpm);

CREATE TABLE IF NOT EXISTS track_crates (
	key TEXT NOT NULL,
	crate TEXT NOT NULL,
	PRIMARY KEY (key, crate),
	FOREIGN KEY (key) REFERENCES tracks(key) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_track_crates_crate ON track_crates(crate);

CREATE TABLE IF NOT EXISTS cache_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	branch_pointer TEXT,
	last_updated TEXT NOT NULL,
	track_count INTEGER NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS tracks_fts USING fts5(
	key UNINDEXED,
	artist,
	title,
	album,
	genre,
	file
);
`
