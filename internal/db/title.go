package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GenerateTitle returns the next free "YYYYMMDD-NN" title for the current
// local date. The check is not atomic with the insert that follows it; two
// concurrent creations may pick the same title.
func (d *Database) GenerateTitle(ctx context.Context) (string, error) {
	date := d.now().Format("20060102")

	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE title LIKE ?", date+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count titles for %s: %w", date, err)
	}

	for {
		count++
		candidate := fmt.Sprintf("%s-%02d", date, count)

		var one int
		err := d.db.QueryRowContext(ctx,
			"SELECT 1 FROM conversations WHERE title = ? LIMIT 1", candidate).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe title %s: %w", candidate, err)
		}
	}
}
