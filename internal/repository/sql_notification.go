package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
)

// SQLNotificationRepo implements NotificationRepo on SQLite or PostgreSQL.
type SQLNotificationRepo struct {
	db db.DBTX
}

// NewSQLNotificationRepo creates a new SQLNotificationRepo.
func NewSQLNotificationRepo(conn db.DBTX) *SQLNotificationRepo {
	return &SQLNotificationRepo{db: conn}
}

func (r *SQLNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	var role any
	if n.RecipientRole != nil {
		role = string(*n.RecipientRole)
	}
	query := `INSERT INTO scenario_notifications (id, project_id, scenario_node_id, type, recipient_role, actor, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.ProjectID,
		nullableString(n.ScenarioNodeID),
		string(n.Type),
		role,
		n.Actor,
		boolToInt(n.IsRead),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// ListByProject returns notifications newest first.
func (r *SQLNotificationRepo) ListByProject(ctx context.Context, projectID string, filter NotificationFilter) ([]*domain.Notification, error) {
	query := `SELECT id, project_id, scenario_node_id, type, recipient_role, actor, is_read, created_at
		FROM scenario_notifications WHERE project_id = ?`
	args := []any{projectID}
	if filter.Role != nil {
		query += ` AND (recipient_role IS NULL OR recipient_role = ?)`
		args = append(args, string(*filter.Role))
	}
	if filter.UnreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var nodeID, role sql.NullString
		var typeStr, createdAtStr string
		var isRead int
		if err := rows.Scan(&n.ID, &n.ProjectID, &nodeID, &typeStr, &role, &n.Actor, &isRead, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		n.Type = domain.NotificationType(typeStr)
		n.IsRead = intToBool(isRead)
		if nodeID.Valid {
			n.ScenarioNodeID = &nodeID.String
		}
		if role.Valid {
			cr := domain.CreatorRole(role.String)
			n.RecipientRole = &cr
		}
		var parseErr error
		n.CreatedAt, parseErr = parseTime(createdAtStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing created_at: %w", parseErr)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return out, nil
}

func (r *SQLNotificationRepo) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scenario_notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
