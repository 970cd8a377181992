package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
)

const scenarioDeltaColumns = `id, scenario_node_id, step_number, step_config, manual_data, uploaded_files,
		changed_by, change_reason, created_at, updated_at`

// SQLScenarioDeltaRepo implements ScenarioDeltaRepo on SQLite or PostgreSQL.
type SQLScenarioDeltaRepo struct {
	db db.DBTX
}

// NewSQLScenarioDeltaRepo creates a new SQLScenarioDeltaRepo.
func NewSQLScenarioDeltaRepo(conn db.DBTX) *SQLScenarioDeltaRepo {
	return &SQLScenarioDeltaRepo{db: conn}
}

// Upsert inserts or replaces the delta for (ScenarioNodeID, StepNumber).
// An existing row keeps its id and created_at. The write only happens while
// the node is draft or proposed; otherwise Upsert returns ErrConflict, or
// ErrNotFound when the node does not exist.
func (r *SQLScenarioDeltaRepo) Upsert(ctx context.Context, d *domain.ScenarioDelta) error {
	files := d.UploadedFiles
	if files == nil {
		files = []domain.FileRef{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encoding uploaded files: %w", err)
	}

	query := `INSERT INTO scenario_deltas (id, scenario_node_id, step_number, step_config, manual_data, uploaded_files,
			changed_by, change_reason, created_at, updated_at)
		SELECT ?, ?, CAST(? AS INTEGER), ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM scenario_nodes WHERE id = ? AND status IN ('draft', 'proposed')
		)
		ON CONFLICT (scenario_node_id, step_number) DO UPDATE SET
			step_config = excluded.step_config,
			manual_data = excluded.manual_data,
			uploaded_files = excluded.uploaded_files,
			changed_by = excluded.changed_by,
			change_reason = excluded.change_reason,
			updated_at = excluded.updated_at`
	res, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.ScenarioNodeID,
		d.StepNumber,
		nullablePayload(d.StepConfig),
		nullablePayload(d.ManualData),
		string(filesJSON),
		d.ChangedBy,
		d.ChangeReason,
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
		d.ScenarioNodeID,
	)
	if err != nil {
		return fmt.Errorf("upserting scenario delta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upserting scenario delta: %w", err)
	}
	if n == 0 {
		if _, err := NewSQLScenarioNodeRepo(r.db).GetByID(ctx, d.ScenarioNodeID); err != nil {
			return err
		}
		return fmt.Errorf("scenario %s is not editable: %w", d.ScenarioNodeID, ErrConflict)
	}
	return nil
}

func (r *SQLScenarioDeltaRepo) GetByNodeStep(ctx context.Context, nodeID string, step int) (*domain.ScenarioDelta, error) {
	query := `SELECT ` + scenarioDeltaColumns + ` FROM scenario_deltas
		WHERE scenario_node_id = ? AND step_number = ?`
	d, err := r.scanDelta(r.db.QueryRowContext(ctx, query, nodeID, step))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scenario delta: %w", ErrNotFound)
		}
		return nil, err
	}
	return d, nil
}

func (r *SQLScenarioDeltaRepo) ListByNode(ctx context.Context, nodeID string) ([]*domain.ScenarioDelta, error) {
	return r.ListByNodes(ctx, []string{nodeID})
}

// maxBatchIDs keeps IN lists below SQLite's bound-parameter limit.
const maxBatchIDs = 500

// ListByNodes returns the deltas of every listed node, ordered by node id
// then step. Large id sets are fetched in batches.
func (r *SQLScenarioDeltaRepo) ListByNodes(ctx context.Context, nodeIDs []string) ([]*domain.ScenarioDelta, error) {
	var deltas []*domain.ScenarioDelta
	for start := 0; start < len(nodeIDs); start += maxBatchIDs {
		end := min(start+maxBatchIDs, len(nodeIDs))
		batch, err := r.listBatch(ctx, nodeIDs[start:end])
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, batch...)
	}
	return deltas, nil
}

func (r *SQLScenarioDeltaRepo) listBatch(ctx context.Context, nodeIDs []string) ([]*domain.ScenarioDelta, error) {
	query := `SELECT ` + scenarioDeltaColumns + ` FROM scenario_deltas
		WHERE scenario_node_id IN (` + placeholders(len(nodeIDs)) + `)
		ORDER BY scenario_node_id, step_number`
	args := make([]any, len(nodeIDs))
	for i, id := range nodeIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scenario deltas: %w", err)
	}
	defer rows.Close()

	var deltas []*domain.ScenarioDelta
	for rows.Next() {
		d, err := r.scanDelta(rows)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenario deltas: %w", err)
	}
	return deltas, nil
}

func (r *SQLScenarioDeltaRepo) scanDelta(row rowScanner) (*domain.ScenarioDelta, error) {
	var d domain.ScenarioDelta
	var stepConfig, manualData sql.NullString
	var filesStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&d.ID, &d.ScenarioNodeID, &d.StepNumber, &stepConfig, &manualData, &filesStr,
		&d.ChangedBy, &d.ChangeReason, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning scenario delta: %w", err)
	}

	if stepConfig.Valid {
		d.StepConfig = json.RawMessage(stepConfig.String)
	}
	if manualData.Valid {
		d.ManualData = json.RawMessage(manualData.String)
	}
	if err := json.Unmarshal([]byte(filesStr), &d.UploadedFiles); err != nil {
		return nil, fmt.Errorf("decoding uploaded files of delta %s: %v: %w", d.ID, err, ErrDataCorruption)
	}

	var parseErr error
	d.CreatedAt, parseErr = parseTime(createdAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = parseTime(updatedAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &d, nil
}

// nullablePayload stores an absent payload as SQL NULL.
func nullablePayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
