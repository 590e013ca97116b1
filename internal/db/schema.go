package db

// Schema is the DDL for the mailagent database.
const Schema = `
CREATE TABLE IF NOT EXISTS emails (
    id              TEXT PRIMARY KEY,
    thread_id       TEXT NOT NULL,
    subject         TEXT NOT NULL DEFAULT '',
    sender          TEXT NOT NULL DEFAULT '',
    receiver        TEXT,
    date            TEXT,
    content         TEXT NOT NULL,
    word_count      INTEGER DEFAULT 0,
    sentence_count  INTEGER DEFAULT 0,
    fetched_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    email_id    TEXT,
    content     TEXT NOT NULL,
    embedding   BLOB NOT NULL,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    summary             TEXT NOT NULL DEFAULT '',
    summarized_through  INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL,
    updated_at          TEXT
);

CREATE TABLE IF NOT EXISTS conversations (
    session_id  TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    human       TEXT NOT NULL,
    ai          TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    PRIMARY KEY (session_id, seq),
    FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_fetched ON emails(fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_email ON documents(email_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`
