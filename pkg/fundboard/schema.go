package fundboard

import (
	"database/sql"
	"fmt"
	"strings"
)

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	hasLegacyKey, err := tableHasColumn(tx, "settings", "tavily_api_key")
	if err != nil {
		return err
	}
	hasSearchKey, err := tableHasColumn(tx, "settings", "search_api_key")
	if err != nil {
		return err
	}
	if hasLegacyKey && !hasSearchKey {
		if err := exec(tx, "ALTER TABLE settings RENAME COLUMN tavily_api_key TO search_api_key"); err != nil {
			return err
		}
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL UNIQUE,
			ai_models TEXT NOT NULL DEFAULT '[]',
			active_model_index INTEGER NOT NULL DEFAULT 0,
			system_prompt TEXT,
			recommendation_prompt TEXT,
			market_sentiment_prompt TEXT,
			search_api_key TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	if err := createFundsTable(tx, "funds"); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	// Columns added after the first release. Old databases get them here.
	added := []struct {
		table  string
		column string
		ddl    string
	}{
		{"settings", "recommendation_prompt", "ALTER TABLE settings ADD COLUMN recommendation_prompt TEXT"},
		{"settings", "market_sentiment_prompt", "ALTER TABLE settings ADD COLUMN market_sentiment_prompt TEXT"},
		{"settings", "search_api_key", "ALTER TABLE settings ADD COLUMN search_api_key TEXT"},
		{"funds", "style", "ALTER TABLE funds ADD COLUMN style TEXT DEFAULT ''"},
		{"funds", "focus_boards", "ALTER TABLE funds ADD COLUMN focus_boards TEXT DEFAULT '[]'"},
		{"funds", "schedule_enabled", "ALTER TABLE funds ADD COLUMN schedule_enabled INTEGER NOT NULL DEFAULT 0"},
		{"funds", "schedule_time", "ALTER TABLE funds ADD COLUMN schedule_time TEXT DEFAULT ''"},
		{"funds", "schedule_interval", "ALTER TABLE funds ADD COLUMN schedule_interval TEXT DEFAULT '24H'"},
		{"funds", "updated_at", "ALTER TABLE funds ADD COLUMN updated_at DATETIME"},
	}
	for _, col := range added {
		ok, err := tableHasColumn(tx, col.table, col.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := exec(tx, col.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.table, col.column, err)
		}
	}

	unique, err := fundsHaveUniqueCode(tx)
	if err != nil {
		return err
	}
	if !unique {
		if err := rebuildFunds(tx); err != nil {
			return err
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_funds_user ON funds(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, id)",
	}
	for _, idx := range indexes {
		if err := exec(tx, idx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

func createFundsTable(tx *sql.Tx, name string) error {
	return exec(tx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			fund_code TEXT NOT NULL,
			fund_name TEXT NOT NULL,
			fund_type TEXT DEFAULT '',
			style TEXT DEFAULT '',
			focus_boards TEXT DEFAULT '[]',
			schedule_enabled INTEGER NOT NULL DEFAULT 0,
			schedule_time TEXT DEFAULT '',
			schedule_interval TEXT DEFAULT '24H',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			UNIQUE(user_id, fund_code),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)
	`, name))
}

func tableExists(tx *sql.Tx, table string) (bool, error) {
	var name string
	err := tx.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	exists, err := tableExists(tx, table)
	if err != nil || !exists {
		return false, err
	}
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// fundsHaveUniqueCode reports whether some unique index on funds covers exactly
// (user_id, fund_code).
func fundsHaveUniqueCode(tx *sql.Tx) (bool, error) {
	rows, err := tx.Query("PRAGMA index_list(funds)")
	if err != nil {
		return false, err
	}
	var uniqueIndexes []string
	for rows.Next() {
		var seq int
		var name string
		var unique int
		var origin string
		var partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return false, err
		}
		if unique == 1 {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, err
	}
	rows.Close()

	for _, index := range uniqueIndexes {
		cols, err := indexColumns(tx, index)
		if err != nil {
			return false, err
		}
		if strings.Join(cols, ",") == "user_id,fund_code" {
			return true, nil
		}
	}
	return false, nil
}

func indexColumns(tx *sql.Tx, index string) ([]string, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

// rebuildFunds recreates funds with the (user_id, fund_code) constraint,
// keeping the oldest row of each duplicate group.
func rebuildFunds(tx *sql.Tx) error {
	if err := exec(tx, "DROP TABLE IF EXISTS funds_rebuild"); err != nil {
		return err
	}
	if err := createFundsTable(tx, "funds_rebuild"); err != nil {
		return err
	}
	if err := exec(tx, `
		INSERT INTO funds_rebuild (
			id, user_id, fund_code, fund_name, fund_type, style, focus_boards,
			schedule_enabled, schedule_time, schedule_interval, created_at, updated_at
		)
		SELECT id, user_id, fund_code, fund_name, fund_type, style, focus_boards,
			schedule_enabled, schedule_time, schedule_interval, created_at, updated_at
		FROM funds
		WHERE id IN (SELECT MIN(id) FROM funds GROUP BY user_id, fund_code)
	`); err != nil {
		return fmt.Errorf("copy funds: %w", err)
	}
	if err := exec(tx, "DROP TABLE funds"); err != nil {
		return err
	}
	return exec(tx, "ALTER TABLE funds_rebuild RENAME TO funds")
}
