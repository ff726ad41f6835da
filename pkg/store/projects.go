package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harrisonrobin/nexus/pkg/model"
)

const projectColumns = `id, name, tool, source_ref, project_key, connection_id, vendor_ref, status, progress`

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	var tool, status string
	if err := row.Scan(&p.ID, &p.Name, &tool, &p.SourceRef, &p.Key, &p.ConnectionID, &p.VendorRef, &status, &p.Progress); err != nil {
		return model.Project{}, err
	}
	p.Kind = model.ToolKind(tool)
	p.Status = model.ProjectStatus(status)
	return p, nil
}

// ListProjects returns every tracked project in admission order.
func (store *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := store.database.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (store *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	row := store.database.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ProjectIDs returns the set of tracked project ids.
func (store *Store) ProjectIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := store.database.QueryContext(ctx, `SELECT id FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// AddProjects inserts projects whose id is not tracked yet and returns the ones inserted.
func (store *Store) AddProjects(ctx context.Context, projects []model.Project) ([]model.Project, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	added := []model.Project{}
	for _, p := range projects {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, string(p.Kind), p.SourceRef, p.Key, p.ConnectionID, p.VendorRef, string(p.Status), p.Progress)
		if err != nil {
			return nil, fmt.Errorf("insert project %s: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, p)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// CreateProject inserts a single project, failing with ErrExists on an id clash.
func (store *Store) CreateProject(ctx context.Context, p model.Project) error {
	added, err := store.AddProjects(ctx, []model.Project{p})
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrExists)
	}
	return nil
}

// UpdateProject overwrites the mutable fields of a project.
func (store *Store) UpdateProject(ctx context.Context, p model.Project) error {
	res, err := store.database.ExecContext(ctx,
		`UPDATE projects SET name = ?, vendor_ref = ?, status = ?, progress = ? WHERE id = ?`,
		p.Name, p.VendorRef, string(p.Status), p.Progress, p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return expectOne(res, "project", p.ID)
}

// DeleteProject removes a project. A synced project takes with it only the items filed
// under its name that carry its own tool prefix. A manual project takes the items filed
// under its name unless another tracked project shares that name.
func (store *Store) DeleteProject(ctx context.Context, id string) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return err
	}

	where, args := `project = ?`, []any{p.Name}
	if prefix := p.Prefix(); prefix != "" {
		owned := prefix + "-"
		where += ` AND substr(id, 1, ?) = ?`
		args = append(args, len(owned), owned)
	} else {
		var shared int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE name = ? AND id <> ?`, p.Name, p.ID).Scan(&shared); err != nil {
			return fmt.Errorf("count same-named projects: %w", err)
		}
		if shared > 0 {
			where = ""
		}
	}
	if where != "" {
		for _, table := range []string{"tasks", "defects"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+where, args...); err != nil {
				return fmt.Errorf("delete project %s: %w", table, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return tx.Commit()
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
