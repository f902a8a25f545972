// Package security implements the read-only security metadata
// repository: batched audit and exploit history lookups backed by
// ClickHouse, joined in memory to preserve caller-supplied bridge
// order. The underlying tables are populated by an out-of-scope
// ingestion pipeline — this package only ever reads.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
)

// DefaultLookupDeadline bounds the batch lookup — on expiry or error
// the caller is expected to continue with an empty metadata set rather
// than fail the whole request, since this is enrichment, not gating.
const DefaultLookupDeadline = 3 * time.Second

// Repository is the security metadata read path.
type Repository struct {
	conn driver.Conn
}

// Config configures the ClickHouse connection.
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// Open connects to ClickHouse and verifies reachability with a ping.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("security: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("security: ping clickhouse: %w", err)
	}

	return &Repository{conn: conn}, nil
}

// NewWithConn wraps an already-connected driver.Conn — used by tests
// against a fake/local ClickHouse, and by callers that manage the
// connection lifecycle themselves.
func NewWithConn(conn driver.Conn) *Repository {
	return &Repository{conn: conn}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.conn.Close()
}

type auditRow struct {
	Bridge       string
	Count        uint64
	LatestResult string
}

type exploitRow struct {
	Bridge string
	Count  uint64
	Loss   float64
}

// GetBatchSecurityMetadata returns one SecurityMetadata entry per
// requested bridge, in the same order as bridges. A bridge with no
// audit or exploit rows gets the zero-value defaults
// (hasAudit=false, hasExploit=false, exploitCount=0).
func (r *Repository) GetBatchSecurityMetadata(ctx context.Context, bridges []string) ([]bridge.SecurityMetadata, error) {
	if len(bridges) == 0 {
		return nil, nil
	}

	audits, err := r.batchAudits(ctx, bridges)
	if err != nil {
		return nil, fmt.Errorf("security: audit lookup: %w", err)
	}
	exploits, err := r.batchExploits(ctx, bridges)
	if err != nil {
		return nil, fmt.Errorf("security: exploit lookup: %w", err)
	}

	out := make([]bridge.SecurityMetadata, 0, len(bridges))
	for _, name := range bridges {
		meta := bridge.SecurityMetadata{Bridge: name}
		if a, ok := audits[name]; ok {
			meta.HasAudit = a.Count > 0
			meta.LatestAuditResult = a.LatestResult
		}
		if e, ok := exploits[name]; ok {
			meta.HasExploit = e.Count > 0
			meta.ExploitCount = int(e.Count)
			meta.TotalLossUsd = e.Loss
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *Repository) batchAudits(ctx context.Context, bridges []string) (map[string]auditRow, error) {
	placeholders, args := inClause(bridges)
	query := fmt.Sprintf(`
		SELECT
			bridge,
			count() AS audit_count,
			argMax(result, audit_date) AS latest_result
		FROM audit_reports
		WHERE bridge IN (%s)
		GROUP BY bridge
	`, placeholders)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]auditRow, len(bridges))
	for rows.Next() {
		var row auditRow
		if err := rows.Scan(&row.Bridge, &row.Count, &row.LatestResult); err != nil {
			return nil, err
		}
		out[row.Bridge] = row
	}
	return out, rows.Err()
}

func (r *Repository) batchExploits(ctx context.Context, bridges []string) (map[string]exploitRow, error) {
	placeholders, args := inClause(bridges)
	query := fmt.Sprintf(`
		SELECT
			bridge,
			count() AS exploit_count,
			sum(loss_amount) AS total_loss
		FROM exploit_history
		WHERE bridge IN (%s)
		GROUP BY bridge
	`, placeholders)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]exploitRow, len(bridges))
	for rows.Next() {
		var row exploitRow
		if err := rows.Scan(&row.Bridge, &row.Count, &row.Loss); err != nil {
			return nil, err
		}
		out[row.Bridge] = row
	}
	return out, rows.Err()
}

func inClause(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}
