package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
)

// scenarioNodeColumns is the canonical SELECT column list for scenario_nodes.
const scenarioNodeColumns = `id, project_id, parent_node_id, name, description, creator_role, status,
		branched_at_step, tree_depth, tree_path, frozen_at, selected_at, created_by, created_at, updated_at`

// SQLScenarioNodeRepo implements ScenarioNodeRepo on SQLite or PostgreSQL.
type SQLScenarioNodeRepo struct {
	db db.DBTX
}

// NewSQLScenarioNodeRepo creates a new SQLScenarioNodeRepo.
func NewSQLScenarioNodeRepo(conn db.DBTX) *SQLScenarioNodeRepo {
	return &SQLScenarioNodeRepo{db: conn}
}

func (r *SQLScenarioNodeRepo) Create(ctx context.Context, n *domain.ScenarioNode) error {
	path := n.TreePath
	if path == nil {
		path = []string{}
	}
	pathJSON, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encoding tree path: %w", err)
	}

	query := `INSERT INTO scenario_nodes (id, project_id, parent_node_id, name, description, creator_role, status,
		branched_at_step, tree_depth, tree_path, frozen_at, selected_at, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		n.ID,
		n.ProjectID,
		nullableString(n.ParentNodeID),
		n.Name,
		n.Description,
		string(n.CreatorRole),
		string(n.Status),
		nullableIntToValue(n.BranchedAtStep),
		n.TreeDepth,
		string(pathJSON),
		nullableTimeToString(n.FrozenAt),
		nullableTimeToString(n.SelectedAt),
		n.CreatedBy,
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if isUniqueViolation(err) {
		if n.ParentNodeID == nil {
			return fmt.Errorf("project %s already has a root scenario: %w", n.ProjectID, ErrConflict)
		}
		return fmt.Errorf("scenario node %s already exists: %w", n.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("inserting scenario node: %w", err)
	}
	return nil
}

func (r *SQLScenarioNodeRepo) GetByID(ctx context.Context, id string) (*domain.ScenarioNode, error) {
	query := `SELECT ` + scenarioNodeColumns + ` FROM scenario_nodes WHERE id = ?`
	return r.scanNode(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLScenarioNodeRepo) GetRoot(ctx context.Context, projectID string) (*domain.ScenarioNode, error) {
	query := `SELECT ` + scenarioNodeColumns + ` FROM scenario_nodes
		WHERE project_id = ? AND parent_node_id IS NULL`
	return r.scanNode(r.db.QueryRowContext(ctx, query, projectID))
}

func (r *SQLScenarioNodeRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.ScenarioNode, error) {
	query := `SELECT ` + scenarioNodeColumns + ` FROM scenario_nodes
		WHERE project_id = ? ORDER BY tree_depth, created_at, id`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing scenario nodes: %w", err)
	}
	defer rows.Close()
	return r.scanNodes(rows)
}

// ListChain returns nodeID and every ancestor reachable through
// parent_node_id, unordered. maxHops bounds the walk so a corrupt parent
// cycle cannot recurse forever; callers order and verify the result.
func (r *SQLScenarioNodeRepo) ListChain(ctx context.Context, nodeID string, maxHops int) ([]*domain.ScenarioNode, error) {
	query := `WITH RECURSIVE chain(id, parent_node_id, hops) AS (
			SELECT id, parent_node_id, 0 FROM scenario_nodes WHERE id = ?
			UNION ALL
			SELECT n.id, n.parent_node_id, c.hops + 1
			FROM scenario_nodes n JOIN chain c ON n.id = c.parent_node_id
			WHERE c.hops < ?
		)
		SELECT ` + scenarioNodeColumns + ` FROM scenario_nodes
		WHERE id IN (SELECT id FROM chain)`
	rows, err := r.db.QueryContext(ctx, query, nodeID, maxHops)
	if err != nil {
		return nil, fmt.Errorf("listing scenario chain: %w", err)
	}
	defer rows.Close()
	return r.scanNodes(rows)
}

func (r *SQLScenarioNodeRepo) ListChildren(ctx context.Context, parentID string) ([]*domain.ScenarioNode, error) {
	query := `SELECT ` + scenarioNodeColumns + ` FROM scenario_nodes
		WHERE parent_node_id = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing scenario children: %w", err)
	}
	defer rows.Close()
	return r.scanNodes(rows)
}

func (r *SQLScenarioNodeRepo) UpdateStatus(ctx context.Context, id string, from, to domain.ScenarioStatus, at time.Time) error {
	ts := formatTime(at)
	query := `UPDATE scenario_nodes SET status = ?, updated_at = ?`
	args := []any{string(to), ts}
	switch to {
	case domain.ScenarioFrozen:
		query += `, frozen_at = ?`
		args = append(args, ts)
	case domain.ScenarioSelected:
		query += `, selected_at = ?`
		args = append(args, ts)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating scenario status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating scenario status: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("scenario %s is no longer %s: %w", id, from, ErrConflict)
	}
	return nil
}

func (r *SQLScenarioNodeRepo) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE scenario_nodes SET updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching scenario node: %w", err)
	}
	return nil
}

// DeleteLeaf removes a node only while it has no children.
func (r *SQLScenarioNodeRepo) DeleteLeaf(ctx context.Context, id string) error {
	query := `DELETE FROM scenario_nodes
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM scenario_nodes c WHERE c.parent_node_id = ?)`
	res, err := r.db.ExecContext(ctx, query, id, id)
	if err != nil {
		return fmt.Errorf("deleting scenario node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting scenario node: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("scenario %s has branches: %w", id, ErrConflict)
	}
	return nil
}

// scanNode scans a single scenario node from a *sql.Row.
func (r *SQLScenarioNodeRepo) scanNode(row *sql.Row) (*domain.ScenarioNode, error) {
	n, err := r.scanInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scenario node: %w", ErrNotFound)
		}
		return nil, err
	}
	return n, nil
}

// scanNodes scans multiple scenario nodes from *sql.Rows.
func (r *SQLScenarioNodeRepo) scanNodes(rows *sql.Rows) ([]*domain.ScenarioNode, error) {
	var nodes []*domain.ScenarioNode
	for rows.Next() {
		n, err := r.scanInto(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenario nodes: %w", err)
	}
	return nodes, nil
}

func (r *SQLScenarioNodeRepo) scanInto(row rowScanner) (*domain.ScenarioNode, error) {
	var n domain.ScenarioNode
	var parentID sql.NullString
	var roleStr, statusStr, pathStr, createdAtStr, updatedAtStr string
	var branchedAt sql.NullInt64
	var frozenAt, selectedAt sql.NullString

	err := row.Scan(
		&n.ID, &n.ProjectID, &parentID, &n.Name, &n.Description, &roleStr, &statusStr,
		&branchedAt, &n.TreeDepth, &pathStr, &frozenAt, &selectedAt,
		&n.CreatedBy, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning scenario node: %w", err)
	}

	n.CreatorRole = domain.CreatorRole(roleStr)
	n.Status = domain.ScenarioStatus(statusStr)
	if parentID.Valid {
		n.ParentNodeID = &parentID.String
	}
	if branchedAt.Valid {
		v := int(branchedAt.Int64)
		n.BranchedAtStep = &v
	}
	if err := json.Unmarshal([]byte(pathStr), &n.TreePath); err != nil {
		return nil, fmt.Errorf("decoding tree path of scenario %s: %v: %w", n.ID, err, ErrDataCorruption)
	}

	var parseErr error
	n.CreatedAt, parseErr = parseTime(createdAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	n.UpdatedAt, parseErr = parseTime(updatedAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	n.FrozenAt = parseNullableTime(frozenAt)
	n.SelectedAt = parseNullableTime(selectedAt)
	return &n, nil
}
