package chat

// Schema creates the chat log table. seq is the cursor and gives insertion
// order across the whole table.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
    seq     INTEGER PRIMARY KEY AUTOINCREMENT,
    id      TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    sender  TEXT NOT NULL,
    text    TEXT NOT NULL,
    ts      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, seq);
`
