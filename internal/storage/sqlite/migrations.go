package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
//
// Checkpoint state lives on the groups row itself (not an append log):
// a commit overwrites the checkpoint_* columns and bumps
// checkpoint_version, which is the optimistic-concurrency token.
//
// Monetary amounts are stored as TEXT holding the decimal string form so
// no value ever round-trips through REAL.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    checkpoint_version INTEGER NOT NULL DEFAULT 0,
    checkpoint_executed_by TEXT,
    checkpoint_executed_at INTEGER,
    checkpoint_expense_count INTEGER,
    checkpoint_last_expense_at INTEGER
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (group_id, member_id),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    description TEXT NOT NULL,
    amount TEXT NOT NULL,
    paid_by TEXT NOT NULL,
    date TEXT NOT NULL,
    created_at,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_splits (
    expense_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (expense_id, member_id),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    member_id TEXT NOT NULL,
    type TEXT NOT NULL,
    date TEXT NOT NULL,
    amount TEXT NOT NULL,
    tag TEXT NOT NULL,
    name TEXT NOT NULL,
    group_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (run_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);
CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id);
CREATE INDEX IF NOT EXISTS idx_expense_splits_expense_id ON expense_splits(expense_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_member_id ON ledger_entries(member_id);
`

// Note: expenses.created_at deliberately has no column type affinity.
// Imported rows arrive with heterogeneous timestamp shapes (unix millis,
// unix seconds, ISO strings); reads normalize through models.ParseTime.

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
