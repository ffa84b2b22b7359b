package care

import (
	"context"
	"errors"
	"strings"

	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
)

const EntityTask = "maintenance_task"

// TaskStore is the part of a db.Session the task lifecycle needs.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]model.MaintenanceTask, error)
	FindTask(ctx context.Context, taskID int64) (model.MaintenanceTask, error)
	TaskExists(ctx context.Context, taskID int64) (bool, error)
	InsertTask(ctx context.Context, task *model.MaintenanceTask) error
	UpdateTask(ctx context.Context, task *model.MaintenanceTask) error
	RemoveTask(ctx context.Context, taskID int64) error
	ListPlants(ctx context.Context) ([]model.Plant, error)
	SaveChanges(ctx context.Context) error
}

type TaskService struct {
	recorder Recorder
}

func NewTaskService(recorder Recorder) *TaskService {
	return &TaskService{recorder: recorderOrNop(recorder)}
}

// ListAll returns every task with its Plant resolved.
func (s *TaskService) ListAll(ctx context.Context, store TaskStore) ([]model.MaintenanceTask, error) {
	return store.ListTasks(ctx)
}

func (s *TaskService) GetByID(ctx context.Context, store TaskStore, id int64) (Result[model.MaintenanceTask], error) {
	if id <= 0 {
		return notFound[model.MaintenanceTask](), nil
	}
	task, err := store.FindTask(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound[model.MaintenanceTask](), nil
	}
	if err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	return ok(task), nil
}

func (s *TaskService) Exists(ctx context.Context, store TaskStore, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return store.TaskExists(ctx, id)
}

// PlantOptions lists the plants a task can be assigned to.
func (s *TaskService) PlantOptions(ctx context.Context, store TaskStore) ([]model.Plant, error) {
	return store.ListPlants(ctx)
}

// Create inserts a task. The plant reference is not looked up first: a
// dangling PlantID surfaces as db.ErrReferentialIntegrity.
func (s *TaskService) Create(ctx context.Context, store TaskStore, input model.MaintenanceTask) (Result[model.MaintenanceTask], error) {
	if errs := validateTask(input); errs.Any() {
		s.recorder.RecordOperation(EntityTask, "create", StatusInvalid.String())
		return invalid(input, errs), nil
	}

	task := model.MaintenanceTask{TaskType: input.TaskType, Date: input.Date, PlantID: input.PlantID}
	if err := store.InsertTask(ctx, &task); err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	s.recorder.RecordOperation(EntityTask, "create", StatusOK.String())
	return ok(task), nil
}

func (s *TaskService) Update(ctx context.Context, store TaskStore, id int64, input model.MaintenanceTask) (Result[model.MaintenanceTask], error) {
	res, err := s.update(ctx, store, id, input)
	if err == nil {
		s.recorder.RecordOperation(EntityTask, "update", res.Status.String())
	}
	return res, err
}

func (s *TaskService) update(ctx context.Context, store TaskStore, id int64, input model.MaintenanceTask) (Result[model.MaintenanceTask], error) {
	if id <= 0 || id != input.TaskID {
		return notFound[model.MaintenanceTask](), nil
	}
	if errs := validateTask(input); errs.Any() {
		return invalid(input, errs), nil
	}

	task := input
	task.Plant = nil
	err := store.UpdateTask(ctx, &task)
	if errors.Is(err, db.ErrConcurrency) {
		exists, existsErr := store.TaskExists(ctx, id)
		if existsErr != nil {
			return Result[model.MaintenanceTask]{}, existsErr
		}
		if !exists {
			return notFound[model.MaintenanceTask](), nil
		}
		return conflict(input), nil
	}
	if err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	return ok(task), nil
}

func (s *TaskService) Delete(ctx context.Context, store TaskStore, id int64) (Result[model.MaintenanceTask], error) {
	return s.GetByID(ctx, store, id)
}

// ConfirmDelete removes the task. The owning plant is left alone.
func (s *TaskService) ConfirmDelete(ctx context.Context, store TaskStore, id int64) (Result[model.MaintenanceTask], error) {
	res, err := s.GetByID(ctx, store, id)
	if err != nil || !res.OK() {
		return res, err
	}

	err = store.RemoveTask(ctx, id)
	if errors.Is(err, db.ErrConcurrency) {
		s.recorder.RecordOperation(EntityTask, "delete", StatusNotFound.String())
		return notFound[model.MaintenanceTask](), nil
	}
	if err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.MaintenanceTask]{}, err
	}
	s.recorder.RecordOperation(EntityTask, "delete", StatusOK.String())
	return res, nil
}

func validateTask(task model.MaintenanceTask) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(task.TaskType) == "" {
		errs.Add("TaskType", "The TaskType field is required.")
	}
	if task.Date.IsZero() {
		errs.Add("Date", "The Date field is required.")
	}
	if task.PlantID <= 0 {
		errs.Add("PlantID", "The Plant field is required.")
	}
	return errs
}
