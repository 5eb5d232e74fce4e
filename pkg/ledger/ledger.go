// Package ledger keeps a MySQL audit trail of GPU session reservations.
//
// Every reserve and release is recorded so usage can be reconstructed after
// the pods themselves are gone. The ledger is write-behind: session lifecycle
// never depends on it, a failed insert only costs an audit row.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Reservation is one row in the gpu_session table.
type Reservation struct {
	Session    string    `json:"session"`
	Namespace  string    `json:"namespace"`
	Owner      string    `json:"owner,omitempty"`
	Profile    string    `json:"profile,omitempty"`
	GPUProduct string    `json:"gpuProduct"`
	GPUCount   int64     `json:"gpuCount"`
	NodeName   string    `json:"nodeName,omitempty"`
	ReservedAt time.Time `json:"reservedAt"`
}

// Record is a reservation as read back from the ledger.
type Record struct {
	ID int64 `json:"id"`
	Reservation
}

// Ledger wraps the MySQL connection pool.
type Ledger struct {
	db *sql.DB
}

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS gpu_session (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		session VARCHAR(253) NOT NULL,
		namespace VARCHAR(63) NOT NULL,
		owner VARCHAR(63) NOT NULL DEFAULT '',
		profile VARCHAR(253) NOT NULL DEFAULT '',
		gpu_product VARCHAR(63) NOT NULL,
		gpu_count TINYINT NOT NULL,
		node_name VARCHAR(253) NOT NULL DEFAULT '',
		reserved_at DATETIME NOT NULL,
		released_at DATETIME NULL,
		release_reason VARCHAR(63) NOT NULL DEFAULT '',
		KEY idx_session (session, namespace)
	);
`

// Open parses the DSN and opens a connection pool. DATETIME columns must
// scan into time.Time, so parseTime is forced on regardless of the DSN.
func Open(dsn string) (*Ledger, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger DSN: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	return &Ledger{db: db}, nil
}

// EnsureSchema pings the database and creates the gpu_session table if it
// does not exist yet.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach ledger database: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create gpu_session table: %w", err)
	}

	log.Printf("✅ Session ledger ready")
	return nil
}

// RecordReserve inserts an open reservation row.
func (l *Ledger) RecordReserve(ctx context.Context, r Reservation) error {
	insertSQL := `INSERT INTO gpu_session
		(session, namespace, owner, profile, gpu_product, gpu_count, node_name, reserved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	reservedAt := r.ReservedAt
	if reservedAt.IsZero() {
		reservedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, insertSQL,
		r.Session, r.Namespace, r.Owner, r.Profile,
		r.GPUProduct, r.GPUCount, r.NodeName, reservedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record reservation for %s/%s: %w", r.Namespace, r.Session, err)
	}

	return nil
}

// RecordRelease closes the open row for a session. Releasing a session the
// ledger never saw is not an error.
func (l *Ledger) RecordRelease(ctx context.Context, namespace, session, reason string) error {
	updateSQL := `UPDATE gpu_session
		SET released_at = ?, release_reason = ?
		WHERE namespace = ? AND session = ? AND released_at IS NULL`

	res, err := l.db.ExecContext(ctx, updateSQL, time.Now().UTC(), reason, namespace, session)
	if err != nil {
		return fmt.Errorf("failed to record release for %s/%s: %w", namespace, session, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Printf("No open ledger row for session %s/%s", namespace, session)
	}
	return nil
}

// Active returns the reservations that have not been released yet, oldest
// first.
func (l *Ledger) Active(ctx context.Context) ([]Record, error) {
	selectSQL := `SELECT id, session, namespace, owner, profile, gpu_product, gpu_count, node_name, reserved_at
		FROM gpu_session
		WHERE released_at IS NULL
		ORDER BY reserved_at`

	rows, err := l.db.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query active reservations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Namespace, &rec.Owner, &rec.Profile,
			&rec.GPUProduct, &rec.GPUCount, &rec.NodeName, &rec.ReservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reservation rows: %w", err)
	}

	return records, nil
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RedactDSN strips the password out of a DSN so it is safe to log.
func RedactDSN(dsn string) string {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	if cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
	}
	return cfg.FormatDSN()
}
