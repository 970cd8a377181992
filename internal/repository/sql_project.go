package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
)

const projectColumns = `id, short_id, name, active_scenario_id, active_version, revision, created_at, updated_at`

// SQLProjectRepo implements ProjectRepo on SQLite or PostgreSQL.
type SQLProjectRepo struct {
	db db.DBTX
}

// NewSQLProjectRepo creates a new SQLProjectRepo.
func NewSQLProjectRepo(conn db.DBTX) *SQLProjectRepo {
	return &SQLProjectRepo{db: conn}
}

func (r *SQLProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	query := `INSERT INTO projects (id, short_id, name, active_scenario_id, active_version, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.ShortID,
		p.Name,
		nullableString(p.ActiveScenarioID),
		p.ActiveVersion,
		p.Revision,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s or short id %q already exists: %w", p.ID, p.ShortID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (r *SQLProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return r.scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLProjectRepo) GetByShortID(ctx context.Context, shortID string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE UPPER(short_id) = UPPER(?)`
	return r.scanProject(r.db.QueryRowContext(ctx, query, shortID))
}

func (r *SQLProjectRepo) List(ctx context.Context) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return projects, nil
}

func (r *SQLProjectRepo) SetActiveScenario(ctx context.Context, projectID string, nodeID *string, expectedVersion int) error {
	query := `UPDATE projects
		SET active_scenario_id = ?, active_version = active_version + 1, updated_at = ?
		WHERE id = ? AND active_version = ?`
	res, err := r.db.ExecContext(ctx, query,
		nullableString(nodeID), formatTime(time.Now()), projectID, expectedVersion)
	if err != nil {
		return fmt.Errorf("setting active scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting active scenario: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, projectID); err != nil {
			return err
		}
		return fmt.Errorf("active scenario of project %s changed concurrently: %w", projectID, ErrConflict)
	}
	return nil
}

func (r *SQLProjectRepo) BumpRevision(ctx context.Context, projectID string) (int, error) {
	query := `UPDATE projects SET revision = revision + 1, updated_at = ? WHERE id = ? RETURNING revision`
	var rev int
	err := r.db.QueryRowContext(ctx, query, formatTime(time.Now()), projectID).Scan(&rev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return 0, fmt.Errorf("bumping project revision: %w", err)
	}
	return rev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProject scans a single project row from a *sql.Row or *sql.Rows.
func (r *SQLProjectRepo) scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var activeID sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&p.ID, &p.ShortID, &p.Name, &activeID,
		&p.ActiveVersion, &p.Revision,
		&createdAtStr, &updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	if activeID.Valid {
		p.ActiveScenarioID = &activeID.String
	}

	var parseErr error
	p.CreatedAt, parseErr = parseTime(createdAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	p.UpdatedAt, parseErr = parseTime(updatedAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &p, nil
}
