package db

// schema is applied on every (re)connect; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    status        TEXT NOT NULL DEFAULT 'active',
    metadata      TEXT NOT NULL DEFAULT '{}',
    message_count INTEGER NOT NULL DEFAULT 0,
    CHECK (status IN ('active', 'paused', 'completed', 'archived', 'deleted')),
    CHECK (message_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_conversations_status_created ON conversations(status, created_at);

CREATE TABLE IF NOT EXISTS messages (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      DATETIME NOT NULL,
    metadata        TEXT NOT NULL DEFAULT '{}',
    token_count     INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id),
    CHECK (role IN ('system', 'user', 'assistant'))
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at, seq);

CREATE TABLE IF NOT EXISTS agents (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    email            TEXT NOT NULL,
    phone            TEXT NOT NULL DEFAULT '',
    license_number   TEXT NOT NULL DEFAULT '',
    specialties      TEXT NOT NULL DEFAULT '',
    years_experience INTEGER NOT NULL DEFAULT 0,
    ytd_sales        REAL NOT NULL DEFAULT 0,
    rating           REAL NOT NULL DEFAULT 0,
    is_featured      INTEGER NOT NULL DEFAULT 0,
    is_active        INTEGER NOT NULL DEFAULT 1,
    bio              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS properties (
    id             TEXT PRIMARY KEY,
    mls_number     TEXT NOT NULL DEFAULT '',
    address        TEXT NOT NULL,
    city           TEXT NOT NULL,
    state          TEXT NOT NULL,
    zip_code       TEXT NOT NULL DEFAULT '',
    property_type  TEXT NOT NULL,
    price          REAL NOT NULL,
    bedrooms       INTEGER NOT NULL DEFAULT 0,
    bathrooms      REAL NOT NULL DEFAULT 0,
    square_feet    INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL,
    listing_date   DATETIME NOT NULL,
    sold_date      DATETIME,
    days_on_market INTEGER NOT NULL DEFAULT 0,
    description    TEXT NOT NULL DEFAULT '',
    agent_id       TEXT REFERENCES agents(id),
    CHECK (status IN ('active', 'pending', 'sold', 'withdrawn'))
);

CREATE INDEX IF NOT EXISTS idx_properties_status_listing ON properties(status, listing_date);
CREATE INDEX IF NOT EXISTS idx_properties_city_type ON properties(city, property_type);

CREATE TABLE IF NOT EXISTS showings (
    id             TEXT PRIMARY KEY,
    property_id    TEXT NOT NULL REFERENCES properties(id),
    agent_id       TEXT REFERENCES agents(id),
    client_name    TEXT NOT NULL,
    client_email   TEXT NOT NULL,
    client_phone   TEXT NOT NULL DEFAULT '',
    preferred_date DATETIME NOT NULL,
    time_slot      TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'requested',
    notes          TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_showings_property ON showings(property_id);
CREATE INDEX IF NOT EXISTS idx_showings_created ON showings(created_at);
`
