package sqlite

import "context"

// Count returns the number of entries currently recorded, used by the CLI's
// status command to report something observable about the store from
// outside a running process.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}
