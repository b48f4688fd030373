package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS ping_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	success INTEGER NOT NULL,
	response_time_ms REAL,
	error_kind TEXT
);

CREATE INDEX IF NOT EXISTS idx_ping_history_target_timestamp
	ON ping_history(target_name, timestamp);

CREATE TABLE IF NOT EXISTS ping_statistics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	total_pings INTEGER NOT NULL,
	successful_pings INTEGER NOT NULL,
	failed_pings INTEGER NOT NULL,
	success_rate REAL NOT NULL,
	avg_response_time REAL,
	min_response_time REAL,
	max_response_time REAL,
	last_status INTEGER,
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ping_statistics_target_timestamp
	ON ping_statistics(target_name, timestamp);

CREATE TABLE IF NOT EXISTS disconnect_events (
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	disconnect_count INTEGER NOT NULL,
	PRIMARY KEY (target_name, start_time)
);

CREATE INDEX IF NOT EXISTS idx_disconnect_events_target
	ON disconnect_events(target_name, start_time);
`
