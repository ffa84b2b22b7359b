package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Joseda-hg/plantcare/internal/model"
)

const taskSelect = `SELECT t.task_id, t.task_type, t.date, t.plant_id, t.version, p.plant_id, p.name, p.description, p.version
FROM maintenance_tasks t
JOIN plants p ON p.plant_id = t.plant_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.MaintenanceTask, error) {
	var (
		task  model.MaintenanceTask
		plant model.Plant
	)
	if err := row.Scan(
		&task.TaskID, &task.TaskType, &task.Date, &task.PlantID, &task.Version,
		&plant.PlantID, &plant.Name, &plant.Description, &plant.Version,
	); err != nil {
		return model.MaintenanceTask{}, err
	}
	task.Date = task.Date.UTC()
	task.Plant = &plant
	return task, nil
}

// ListTasks returns every maintenance task with its owning plant resolved.
func (s *Session) ListTasks(ctx context.Context) ([]model.MaintenanceTask, error) {
	return s.queryTasks(ctx, taskSelect+" ORDER BY t.date, t.task_id")
}

func (s *Session) ListTasksForPlant(ctx context.Context, plantID int64) ([]model.MaintenanceTask, error) {
	return s.queryTasks(ctx, taskSelect+" WHERE t.plant_id = ? ORDER BY t.date, t.task_id", plantID)
}

func (s *Session) queryTasks(ctx context.Context, query string, args ...any) ([]model.MaintenanceTask, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.MaintenanceTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *Session) FindTask(ctx context.Context, taskID int64) (model.MaintenanceTask, error) {
	q, err := s.reader()
	if err != nil {
		return model.MaintenanceTask{}, err
	}

	task, err := scanTask(q.QueryRowContext(ctx, s.rebind(taskSelect+" WHERE t.task_id = ?"), taskID))
	if err != nil {
		return model.MaintenanceTask{}, fmt.Errorf("find task %d: %w", taskID, translateError(err))
	}
	return task, nil
}

func (s *Session) TaskExists(ctx context.Context, taskID int64) (bool, error) {
	q, err := s.reader()
	if err != nil {
		return false, err
	}

	var exists int
	err = q.QueryRowContext(ctx, s.rebind("SELECT 1 FROM maintenance_tasks WHERE task_id = ?"), taskID).Scan(&exists)
	if err != nil {
		if errors.Is(translateError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check task %d: %w", taskID, err)
	}
	return true, nil
}

// InsertTask stages a new task. A PlantID that names no plant fails with
// ErrReferentialIntegrity, at the latest when the session is saved.
func (s *Session) InsertTask(ctx context.Context, task *model.MaintenanceTask) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	err = q.QueryRowContext(ctx,
		s.rebind("INSERT INTO maintenance_tasks (task_type, date, plant_id, version) VALUES (?, ?, ?, 1) RETURNING task_id, version"),
		task.TaskType, storedTime(task.Date), task.PlantID,
	).Scan(&task.TaskID, &task.Version)
	if err != nil {
		return fmt.Errorf("insert task: %w", translateError(err))
	}
	return nil
}

// UpdateTask follows the same version rules as UpdatePlant.
func (s *Session) UpdateTask(ctx context.Context, task *model.MaintenanceTask) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx,
		s.rebind(`UPDATE maintenance_tasks SET task_type = ?, date = ?, plant_id = ?, version = version + 1
WHERE task_id = ? AND (? = 0 OR version = ?)`),
		task.TaskType, storedTime(task.Date), task.PlantID, task.TaskID, task.Version, task.Version,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.TaskID, translateError(err))
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("update task %d: %w", task.TaskID, err)
	}

	err = q.QueryRowContext(ctx, s.rebind("SELECT version FROM maintenance_tasks WHERE task_id = ?"), task.TaskID).Scan(&task.Version)
	if err != nil {
		return fmt.Errorf("reload task %d version: %w", task.TaskID, translateError(err))
	}
	return nil
}

func (s *Session) RemoveTask(ctx context.Context, taskID int64) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, s.rebind("DELETE FROM maintenance_tasks WHERE task_id = ?"), taskID)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, translateError(err))
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	return nil
}

func storedTime(t time.Time) time.Time {
	return t.UTC()
}
