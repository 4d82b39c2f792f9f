package db

import (
	migrate "github.com/rubenv/sql-migrate"
)

// Migrations create the event log, consumer offsets and schedule
// index tables.
var Migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_release_events",
			Up: []string{`
				CREATE TABLE release_events (
					position   BIGSERIAL PRIMARY KEY,
					release_id TEXT NOT NULL,
					seq_nr     BIGINT NOT NULL,
					tag        TEXT NOT NULL,
					type       TEXT NOT NULL,
					body       TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
					UNIQUE (release_id, seq_nr)
				);
				CREATE INDEX ON release_events (tag, position);
			`},
			Down: []string{`DROP TABLE release_events;`},
		},
		{
			Id: "2_release_offsets",
			Up: []string{`
				CREATE TABLE release_offsets (
					consumer TEXT NOT NULL,
					tag      TEXT NOT NULL,
					position BIGINT NOT NULL,
					PRIMARY KEY (consumer, tag)
				);
			`},
			Down: []string{`DROP TABLE release_offsets;`},
		},
		{
			Id: "3_release_schedule",
			Up: []string{`
				CREATE TABLE release_schedule (
					release_id TEXT PRIMARY KEY,
					tag        TEXT NOT NULL,
					status     TEXT NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX ON release_schedule (tag, status);
			`},
			Down: []string{`DROP TABLE release_schedule;`},
		},
	},
}
