package db

import (
	"context"
	"testing"
	"time"

	"github.com/Joseda-hg/plantcare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertPlantAndTaskResolvesPlant(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()
	session := store.Session()
	defer session.Close()

	fern := model.Plant{Name: "Fern", Description: "Indoor"}
	require.NoError(t, session.InsertPlant(ctx, &fern))
	assert.Equal(t, int64(1), fern.PlantID)
	assert.Equal(t, int64(1), fern.Version)

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	watering := model.MaintenanceTask{TaskType: "Watering", Date: date, PlantID: fern.PlantID}
	require.NoError(t, session.InsertTask(ctx, &watering))
	assert.Equal(t, int64(1), watering.TaskID)
	require.NoError(t, session.SaveChanges(ctx))

	reader := store.Session()
	defer reader.Close()

	task, err := reader.FindTask(ctx, watering.TaskID)
	require.NoError(t, err)
	require.NotNil(t, task.Plant)
	assert.Equal(t, "Fern", task.Plant.Name)
	assert.True(t, date.Equal(task.Date), "date %v", task.Date)

	tasks, err := reader.ListTasksForPlant(ctx, fern.PlantID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSessionCloseDiscardsUnsavedWrites(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()

	session := store.Session()
	require.NoError(t, session.InsertPlant(ctx, &model.Plant{Name: "Basil"}))
	assert.True(t, session.Pending())
	require.NoError(t, session.Close())

	_, err := session.ListPlants(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)

	plants, err := store.Session().ListPlants(ctx)
	require.NoError(t, err)
	assert.Empty(t, plants)
}

func TestInsertTaskWithMissingPlantFails(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()
	session := store.Session()
	defer session.Close()

	err := session.InsertTask(ctx, &model.MaintenanceTask{TaskType: "Pruning", Date: time.Now(), PlantID: 42})
	require.ErrorIs(t, err, ErrReferentialIntegrity)
}

func TestUpdatePlantChecksVersion(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()
	plant := insertPlant(t, store, "Monstera")

	stale := plant
	session := store.Session()
	defer session.Close()

	plant.Name = "Monstera deliciosa"
	require.NoError(t, session.UpdatePlant(ctx, &plant))
	assert.Equal(t, int64(2), plant.Version)

	stale.Description = "edited elsewhere"
	err := session.UpdatePlant(ctx, &stale)
	require.ErrorIs(t, err, ErrConcurrency)

	unversioned := model.Plant{PlantID: plant.PlantID, Name: "Swiss cheese plant"}
	require.NoError(t, session.UpdatePlant(ctx, &unversioned))
	assert.Equal(t, int64(3), unversioned.Version)
	require.NoError(t, session.SaveChanges(ctx))
}

func TestUpdateAndRemoveMissingRowsReportConcurrency(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()
	session := store.Session()
	defer session.Close()

	err := session.UpdatePlant(ctx, &model.Plant{PlantID: 99, Name: "Ghost", Version: 1})
	assert.ErrorIs(t, err, ErrConcurrency)

	err = session.UpdateTask(ctx, &model.MaintenanceTask{TaskID: 99, TaskType: "Ghost", Date: time.Now(), PlantID: 1})
	assert.ErrorIs(t, err, ErrConcurrency)

	assert.ErrorIs(t, session.RemovePlant(ctx, 99), ErrConcurrency)
	assert.ErrorIs(t, session.RemoveTask(ctx, 99), ErrConcurrency)

	_, err = session.FindPlant(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = session.FindTask(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemovePlantHonoursOnDeleteMode(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		wantErr   error
		tasksLeft int
	}{
		{name: "cascade", mode: OnDeleteCascade, tasksLeft: 0},
		{name: "restrict", mode: OnDeleteRestrict, wantErr: ErrReferentialIntegrity, tasksLeft: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, tt.mode)
			ctx := context.Background()
			plant := insertPlant(t, store, "Aloe")

			session := store.Session()
			require.NoError(t, session.InsertTask(ctx, &model.MaintenanceTask{TaskType: "Repot", Date: time.Now(), PlantID: plant.PlantID}))
			require.NoError(t, session.SaveChanges(ctx))

			err := session.RemovePlant(ctx, plant.PlantID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.NoError(t, session.SaveChanges(ctx))
			}
			require.NoError(t, session.Close())

			tasks, err := store.Session().ListTasks(ctx)
			require.NoError(t, err)
			assert.Len(t, tasks, tt.tasksLeft)
		})
	}
}

func TestRemoveTaskKeepsPlant(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()
	plant := insertPlant(t, store, "Cactus")

	session := store.Session()
	defer session.Close()
	task := model.MaintenanceTask{TaskType: "Dust", Date: time.Now(), PlantID: plant.PlantID}
	require.NoError(t, session.InsertTask(ctx, &task))
	require.NoError(t, session.RemoveTask(ctx, task.TaskID))
	require.NoError(t, session.SaveChanges(ctx))

	exists, err := session.PlantExists(ctx, plant.PlantID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = session.TaskExists(ctx, task.TaskID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsersAndRoles(t *testing.T) {
	store := newTestStore(t, OnDeleteCascade)
	ctx := context.Background()

	require.NoError(t, store.EnsureRoles(ctx, "Admin", "User"))
	require.NoError(t, store.EnsureRoles(ctx, "Admin"))

	user, err := store.CreateUser(ctx, " Admin@Example.com ", "hash")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)

	_, err = store.CreateUser(ctx, "admin@example.com", "other")
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, store.AddUserToRole(ctx, user.ID, "Admin"))
	require.NoError(t, store.AddUserToRole(ctx, user.ID, "Admin"))
	require.NoError(t, store.AddUserToRole(ctx, user.ID, "User"))

	loaded, err := store.GetUserByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, loaded.Roles)
	assert.Equal(t, "hash", loaded.PasswordHash)

	require.NoError(t, store.SetPassword(ctx, user.ID, "new-hash"))
	assert.ErrorIs(t, store.SetPassword(ctx, 999, "x"), ErrNotFound)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebindOnlyAffectsPostgres(t *testing.T) {
	query := "SELECT 1 FROM plants WHERE plant_id = ? AND version = ?"
	assert.Equal(t, query, rebind(DriverSQLite, query))
	assert.Equal(t, "SELECT 1 FROM plants WHERE plant_id = $1 AND version = $2", rebind(DriverPostgres, query))
}

func TestOpenRejectsUnknownOnDeleteMode(t *testing.T) {
	_, err := Open(Options{DSN: ":memory:", OnPlantDelete: "nullify"})
	assert.Error(t, err)

	_, err = Open(Options{})
	assert.Error(t, err)
}

func insertPlant(t *testing.T, store *Store, name string) model.Plant {
	t.Helper()
	ctx := context.Background()
	session := store.Session()
	defer session.Close()

	plant := model.Plant{Name: name}
	require.NoError(t, session.InsertPlant(ctx, &plant))
	require.NoError(t, session.SaveChanges(ctx))
	return plant
}

func newTestStore(t *testing.T, onDelete string) *Store {
	t.Helper()
	db, err := Open(Options{DSN: ":memory:", OnPlantDelete: onDelete})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewStore(db, DriverSQLite)
}
