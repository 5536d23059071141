package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/domain/shared"
	"github.com/leakwatch/gateway/pkg/pagination"
)

const auditColumns = `id, actor, actor_role, actor_ip, action, resource_type, resource_id,
	result, severity, status, message, request_id, logged_at`

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create persists a new record. Redelivered records are ignored.
func (r *AuditRepository) Create(ctx context.Context, rec *audit.Record) error {
	query := `
		INSERT INTO audit_records (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(),
		nullString(rec.Actor),
		nullString(rec.ActorRole),
		nullString(rec.ActorIP),
		rec.Action.String(),
		rec.ResourceType.String(),
		nullString(rec.ResourceID),
		rec.Result.String(),
		string(rec.Severity),
		rec.Status,
		nullString(rec.Message),
		nullString(rec.RequestID),
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

// List retrieves records matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter, page pagination.Window) (pagination.Result[*audit.Record], error) {
	if err := filter.Validate(); err != nil {
		return pagination.Result[*audit.Record]{}, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_records`

	whereClause, args := buildWhereClause(filter)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += fmt.Sprintf(" ORDER BY logged_at DESC LIMIT %d OFFSET %d", page.Limit, page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*audit.Record]{}, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return pagination.Result[*audit.Record]{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*audit.Record]{}, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return pagination.NewResult(records, page), nil
}

// DeleteOlderThan deletes records older than before. High and critical
// records are kept.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM audit_records WHERE logged_at < $1 AND severity NOT IN ('high', 'critical')`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit records: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

func buildWhereClause(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType.String())
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.Since != nil {
		add("logged_at >= $%d", *f.Since)
	}
	return strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*audit.Record, error) {
	var (
		id, action, resourceType, result, severity      string
		actor, role, ip, resourceID, message, requestID sql.NullString
		rec                                             audit.Record
	)
	err := row.Scan(&id, &actor, &role, &ip, &action, &resourceType, &resourceID,
		&result, &severity, &rec.Status, &message, &requestID, &rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	parsed, err := shared.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit record id: %w", err)
	}
	rec.ID = parsed
	rec.Actor = nullStringValue(actor)
	rec.ActorRole = nullStringValue(role)
	rec.ActorIP = nullStringValue(ip)
	rec.Action = audit.Action(action)
	rec.ResourceType = audit.ResourceType(resourceType)
	rec.ResourceID = nullStringValue(resourceID)
	rec.Result = audit.Result(result)
	rec.Severity = audit.Severity(severity)
	rec.Message = nullStringValue(message)
	rec.RequestID = nullStringValue(requestID)
	return &rec, nil
}
