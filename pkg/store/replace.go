package store

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// SyncBatch is the freshly mapped content of one (tool, project) pair.
type SyncBatch struct {
	ProjectName string
	Prefix      string
	Tasks       []model.Task
	Defects     []model.Defect
	// Project, when set, refreshes the project's progress and status.
	Project *model.Project
}

// SyncResult reports what a ReplaceSynced call changed.
type SyncResult struct {
	Removed      int
	AddedTasks   []model.Task
	AddedDefects []model.Defect
}

// ReplaceSynced removes every task and defect filed under batch.ProjectName whose id
// carries batch.Prefix, then inserts the batch. Everything happens in one transaction,
// so a failure leaves the previous state untouched. Items added are those whose id was
// not held before the call.
func (store *Store) ReplaceSynced(ctx context.Context, batch SyncBatch) (SyncResult, error) {
	if batch.Prefix == "" {
		return SyncResult{}, fmt.Errorf("replace synced: empty prefix")
	}
	owned := batch.Prefix + "-"

	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// LIKE is case-insensitive in SQLite, so prefix matching uses substr.
	held := make(map[string]bool)
	for _, table := range []string{"tasks", "defects"} {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM `+table+` WHERE project = ? AND substr(id, 1, ?) = ?`,
			batch.ProjectName, len(owned), owned)
		if err != nil {
			return SyncResult{}, fmt.Errorf("select held %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return SyncResult{}, err
			}
			held[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return SyncResult{}, err
		}
	}

	var result SyncResult
	for _, table := range []string{"tasks", "defects"} {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE project = ? AND substr(id, 1, ?) = ?`,
			batch.ProjectName, len(owned), owned)
		if err != nil {
			return SyncResult{}, fmt.Errorf("remove synced %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		result.Removed += int(n)
	}

	for _, t := range batch.Tasks {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, taskArgs(t)...); err != nil {
			return SyncResult{}, fmt.Errorf("insert task %s: %w", t.ID, err)
		}
		if !held[t.ID] {
			result.AddedTasks = append(result.AddedTasks, t)
		}
	}
	for _, d := range batch.Defects {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO defects (`+defectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`, defectArgs(d)...); err != nil {
			return SyncResult{}, fmt.Errorf("insert defect %s: %w", d.ID, err)
		}
		if !held[d.ID] {
			result.AddedDefects = append(result.AddedDefects, d)
		}
	}

	if p := batch.Project; p != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, progress = ? WHERE id = ?`,
			string(p.Status), p.Progress, p.ID); err != nil {
			return SyncResult{}, fmt.Errorf("update project %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SyncResult{}, fmt.Errorf("commit sync: %w", err)
	}
	return result, nil
}
