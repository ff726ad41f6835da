package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harrisonrobin/nexus/pkg/model"
)

const (
	taskColumns   = `id, title, project, status, priority, creation_date, due_date, assigned_to`
	defectColumns = `id, title, project, severity, creation_date, assigned_to, triage_call`
)

func scanTask(row scanner) (model.Task, error) {
	var t model.Task
	var status, priority, created string
	var due sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Project, &status, &priority, &created, &due, &t.AssignedTo); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(priority)
	t.CreationDate = parseDateColumn(created)
	if due.Valid && due.String != "" {
		d := parseDateColumn(due.String)
		t.DueDate = &d
	}
	return t, nil
}

func taskArgs(t model.Task) []any {
	var due any
	if t.DueDate != nil && !t.DueDate.IsZero() {
		due = t.DueDate.String()
	}
	return []any{t.ID, t.Title, t.Project, string(t.Status), string(t.Priority), dateColumn(t.CreationDate), due, t.AssignedTo}
}

func scanDefect(row scanner) (model.Defect, error) {
	var d model.Defect
	var severity, created string
	if err := row.Scan(&d.ID, &d.Title, &d.Project, &severity, &created, &d.AssignedTo, &d.TriageCall); err != nil {
		return model.Defect{}, err
	}
	d.Severity = model.DefectSeverity(severity)
	d.CreationDate = parseDateColumn(created)
	return d, nil
}

func defectArgs(d model.Defect) []any {
	return []any{d.ID, d.Title, d.Project, string(d.Severity), dateColumn(d.CreationDate), d.AssignedTo, d.TriageCall}
}

// ListTasks returns tasks in insertion order. An empty project lists all of them.
func (store *Store) ListTasks(ctx context.Context, project string) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	rows, err := store.database.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (store *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(store.database.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (store *Store) CreateTask(ctx context.Context, t model.Task) error {
	_, err := store.database.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, taskArgs(t)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("task %s: %w", t.ID, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (store *Store) UpdateTask(ctx context.Context, t model.Task) error {
	args := append(taskArgs(t)[1:], t.ID)
	res, err := store.database.ExecContext(ctx,
		`UPDATE tasks SET title = ?, project = ?, status = ?, priority = ?, creation_date = ?, due_date = ?, assigned_to = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectOne(res, "task", t.ID)
}

func (store *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := store.database.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOne(res, "task", id)
}

// ListDefects returns defects in insertion order. An empty project lists all of them.
func (store *Store) ListDefects(ctx context.Context, project string) ([]model.Defect, error) {
	query := `SELECT ` + defectColumns + ` FROM defects`
	var args []any
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	rows, err := store.database.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list defects: %w", err)
	}
	defer rows.Close()

	defects := []model.Defect{}
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		defects = append(defects, d)
	}
	return defects, rows.Err()
}

func (store *Store) GetDefect(ctx context.Context, id string) (model.Defect, error) {
	d, err := scanDefect(store.database.QueryRowContext(ctx, `SELECT `+defectColumns+` FROM defects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Defect{}, fmt.Errorf("defect %s: %w", id, ErrNotFound)
	}
	return d, err
}

func (store *Store) CreateDefect(ctx context.Context, d model.Defect) error {
	_, err := store.database.ExecContext(ctx, `INSERT INTO defects (`+defectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`, defectArgs(d)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("defect %s: %w", d.ID, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("create defect: %w", err)
	}
	return nil
}

func (store *Store) UpdateDefect(ctx context.Context, d model.Defect) error {
	args := append(defectArgs(d)[1:], d.ID)
	res, err := store.database.ExecContext(ctx,
		`UPDATE defects SET title = ?, project = ?, severity = ?, creation_date = ?, assigned_to = ?, triage_call = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update defect: %w", err)
	}
	return expectOne(res, "defect", d.ID)
}

func (store *Store) DeleteDefect(ctx context.Context, id string) error {
	res, err := store.database.ExecContext(ctx, `DELETE FROM defects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete defect: %w", err)
	}
	return expectOne(res, "defect", id)
}
