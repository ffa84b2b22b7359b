package care

import (
	"context"
	"errors"
	"strings"

	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
)

const EntityPlant = "plant"

// PlantStore is the part of a db.Session the plant lifecycle needs.
type PlantStore interface {
	ListPlants(ctx context.Context) ([]model.Plant, error)
	FindPlant(ctx context.Context, plantID int64) (model.Plant, error)
	PlantExists(ctx context.Context, plantID int64) (bool, error)
	InsertPlant(ctx context.Context, plant *model.Plant) error
	UpdatePlant(ctx context.Context, plant *model.Plant) error
	RemovePlant(ctx context.Context, plantID int64) error
	ListTasksForPlant(ctx context.Context, plantID int64) ([]model.MaintenanceTask, error)
	SaveChanges(ctx context.Context) error
}

type PlantService struct {
	recorder Recorder
}

func NewPlantService(recorder Recorder) *PlantService {
	return &PlantService{recorder: recorderOrNop(recorder)}
}

func (s *PlantService) ListAll(ctx context.Context, store PlantStore) ([]model.Plant, error) {
	return store.ListPlants(ctx)
}

func (s *PlantService) GetByID(ctx context.Context, store PlantStore, id int64) (Result[model.Plant], error) {
	if id <= 0 {
		return notFound[model.Plant](), nil
	}
	plant, err := store.FindPlant(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound[model.Plant](), nil
	}
	if err != nil {
		return Result[model.Plant]{}, err
	}
	return ok(plant), nil
}

// Tasks lists the maintenance tasks of one plant.
func (s *PlantService) Tasks(ctx context.Context, store PlantStore, id int64) ([]model.MaintenanceTask, error) {
	return store.ListTasksForPlant(ctx, id)
}

func (s *PlantService) Exists(ctx context.Context, store PlantStore, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return store.PlantExists(ctx, id)
}

func (s *PlantService) Create(ctx context.Context, store PlantStore, input model.Plant) (Result[model.Plant], error) {
	if errs := validatePlant(input); errs.Any() {
		s.recorder.RecordOperation(EntityPlant, "create", StatusInvalid.String())
		return invalid(input, errs), nil
	}

	plant := model.Plant{Name: input.Name, Description: input.Description}
	if err := store.InsertPlant(ctx, &plant); err != nil {
		return Result[model.Plant]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.Plant]{}, err
	}
	s.recorder.RecordOperation(EntityPlant, "create", StatusOK.String())
	return ok(plant), nil
}

// Update saves input over the plant identified by id. input.Version is the
// version the caller read; zero skips the check.
func (s *PlantService) Update(ctx context.Context, store PlantStore, id int64, input model.Plant) (Result[model.Plant], error) {
	res, err := s.update(ctx, store, id, input)
	if err == nil {
		s.recorder.RecordOperation(EntityPlant, "update", res.Status.String())
	}
	return res, err
}

func (s *PlantService) update(ctx context.Context, store PlantStore, id int64, input model.Plant) (Result[model.Plant], error) {
	if id <= 0 || id != input.PlantID {
		return notFound[model.Plant](), nil
	}
	if errs := validatePlant(input); errs.Any() {
		return invalid(input, errs), nil
	}

	plant := input
	plant.MaintenanceTasks = nil
	err := store.UpdatePlant(ctx, &plant)
	if errors.Is(err, db.ErrConcurrency) {
		exists, existsErr := store.PlantExists(ctx, id)
		if existsErr != nil {
			return Result[model.Plant]{}, existsErr
		}
		if !exists {
			return notFound[model.Plant](), nil
		}
		return conflict(input), nil
	}
	if err != nil {
		return Result[model.Plant]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.Plant]{}, err
	}
	return ok(plant), nil
}

// Delete loads the plant shown on the confirmation page.
func (s *PlantService) Delete(ctx context.Context, store PlantStore, id int64) (Result[model.Plant], error) {
	return s.GetByID(ctx, store, id)
}

// ConfirmDelete removes the plant. Whether its tasks go with it or block the
// delete with db.ErrReferentialIntegrity is decided by the store schema.
func (s *PlantService) ConfirmDelete(ctx context.Context, store PlantStore, id int64) (Result[model.Plant], error) {
	res, err := s.GetByID(ctx, store, id)
	if err != nil || !res.OK() {
		return res, err
	}

	err = store.RemovePlant(ctx, id)
	if errors.Is(err, db.ErrConcurrency) {
		s.recorder.RecordOperation(EntityPlant, "delete", StatusNotFound.String())
		return notFound[model.Plant](), nil
	}
	if err != nil {
		return Result[model.Plant]{}, err
	}
	if err := store.SaveChanges(ctx); err != nil {
		return Result[model.Plant]{}, err
	}
	s.recorder.RecordOperation(EntityPlant, "delete", StatusOK.String())
	return res, nil
}

func validatePlant(plant model.Plant) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(plant.Name) == "" {
		errs.Add("Name", "The Name field is required.")
	}
	return errs
}
