package store

// schema is applied on startup. Statements are idempotent so restarts and
// multiple replicas racing on Bootstrap are harmless.
const schema = `
CREATE TABLE IF NOT EXISTS granola_tokens (
	user_id       text PRIMARY KEY,
	client_id     text NOT NULL DEFAULT '',
	client_secret text,
	code_verifier text,
	access_token  text NOT NULL DEFAULT '',
	refresh_token text,
	token_type    text NOT NULL DEFAULT '',
	scope         text,
	expires_at    timestamptz,
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meetings (
	id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id         text NOT NULL,
	week_id         text NOT NULL,
	title           text NOT NULL,
	day_of_week     int  NOT NULL CHECK (day_of_week BETWEEN 1 AND 5),
	sort_order      int  NOT NULL DEFAULT 0,
	granola_note_id text,
	granola_summary text,
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS meetings_week_idx
	ON meetings (user_id, week_id, day_of_week, sort_order);
`
