// package repositories provides persistence for tracks, their signatures and downloaded previews.
package repositories

import (
	"database/sql"
	"fmt"
)

// NextSequence increments and returns the next sequence number for the given table inside tx.
//
// Sequence numbers provide human-readable ordering for tracks (e.g., track #42) and decide
// the order in which pending signatures are computed.
// Running inside the caller's transaction keeps grouped inserts on a single connection.
func NextSequence(tx *sql.Tx, table string) (int, error) {
	sequenceTable := table + "_sequence"

	_, err := tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	return sequence, nil
}
