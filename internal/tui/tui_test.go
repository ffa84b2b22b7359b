package tui

import (
	"context"
	"testing"
	"time"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminPrincipal = access.Principal{Authenticated: true, Email: "admin@example.com", Roles: []string{access.RoleAdmin, access.RoleUser}}

func TestAdminAddsPlantFromForm(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	ui := newTestUI(t, store, adminPrincipal)

	require.NoError(t, ui.addItem(nil, nil))
	require.NotNil(t, ui.form)
	assert.Equal(t, "New Plant", formTitle(ui.form))

	ui.form.fields[fieldName].Value = "  Fern "
	ui.form.fields[fieldDescription].Value = "North window"
	require.NoError(t, ui.submitFormNow(nil, nil))

	assert.Nil(t, ui.form)
	assert.Equal(t, "Saved.", ui.status)
	require.Len(t, ui.plantList, 1)
	assert.Equal(t, "Fern", ui.plantList[0].Name)
	assert.Equal(t, "North window", ui.plantList[0].Description)
}

func TestInvalidFormStaysOpen(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	ui := newTestUI(t, store, adminPrincipal)

	require.NoError(t, ui.addItem(nil, nil))
	require.NoError(t, ui.submitFormNow(nil, nil))

	require.NotNil(t, ui.form)
	assert.Contains(t, ui.status, "The Name field is required.")
	assert.Empty(t, listPlants(t, store))
}

func TestWritesNeedAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal access.Principal
		status    string
	}{
		{name: "anonymous", principal: access.AnonymousPrincipal, status: "Read-only console"},
		{name: "plain user", principal: access.Principal{Authenticated: true, Email: "user@example.com", Roles: []string{access.RoleUser}}, status: "Only administrators"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, db.OnDeleteCascade)
			seedPlant(t, store, "Fern")
			ui := newTestUI(t, store, tt.principal)

			for _, action := range []func() error{
				func() error { return ui.addItem(nil, nil) },
				func() error { return ui.editItem(nil, nil) },
				func() error { return ui.deleteItem(nil, nil) },
			} {
				ui.status = ""
				require.NoError(t, action())
				assert.Nil(t, ui.form)
				assert.Nil(t, ui.confirm)
				assert.Contains(t, ui.status, tt.status)
			}
			assert.Len(t, listPlants(t, store), 1)
		})
	}
}

func TestAnonymousCanBrowse(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	fern := seedPlant(t, store, "Fern")
	seedTask(t, store, fern.PlantID, "Watering", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	seedPlant(t, store, "Cactus")

	ui := newTestUI(t, store, access.AnonymousPrincipal)
	require.Len(t, ui.plantList, 2)
	require.Equal(t, "Fern", ui.selectedPlantItem().Name)
	require.Len(t, ui.taskList, 1)
	assert.Contains(t, ui.detailsText(), "Watering x1, last 2024-05-01 09:00")

	require.NoError(t, ui.moveDown(nil, nil))
	assert.Equal(t, "Cactus", ui.selectedPlantItem().Name)
	assert.Empty(t, ui.taskList)

	require.NoError(t, ui.moveUp(nil, nil))
	require.NoError(t, ui.focusTasks(nil, nil))
	assert.Equal(t, viewTasks, ui.focus)
	assert.Contains(t, ui.detailsText(), "Plant: Fern")
}

func TestAddTaskDefaultsToSelectedPlant(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	seedPlant(t, store, "Cactus")
	fern := seedPlant(t, store, "Fern")

	ui := newTestUI(t, store, adminPrincipal)
	require.NoError(t, ui.moveDown(nil, nil))
	require.NoError(t, ui.focusTasks(nil, nil))

	require.NoError(t, ui.addItem(nil, nil))
	require.NotNil(t, ui.form)
	assert.Equal(t, access.MaintenanceTask, ui.form.entity)
	assert.Equal(t, "Fern", ui.form.fields[fieldPlant].Value)

	ui.form.fields[fieldTaskType].Value = "Watering"
	ui.form.fields[fieldDate].Value = "2024-05-01 09:30"
	require.NoError(t, ui.submitFormNow(nil, nil))
	require.Nil(t, ui.form)

	require.Len(t, ui.taskList, 1)
	task := ui.taskList[0]
	assert.Equal(t, fern.PlantID, task.PlantID)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), task.Date)
}

func TestTaskFormRejectsBadDate(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	seedPlant(t, store, "Fern")
	ui := newTestUI(t, store, adminPrincipal)
	require.NoError(t, ui.focusTasks(nil, nil))

	require.NoError(t, ui.addItem(nil, nil))
	ui.form.fields[fieldTaskType].Value = "Watering"
	ui.form.fields[fieldDate].Value = "tomorrow"
	require.NoError(t, ui.submitFormNow(nil, nil))

	require.NotNil(t, ui.form)
	assert.Contains(t, ui.status, "invalid date")
}

func TestTaskFormWithoutPlants(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	ui := newTestUI(t, store, adminPrincipal)
	ui.focus = viewTasks

	require.NoError(t, ui.addItem(nil, nil))
	require.NotNil(t, ui.form)
	assert.Equal(t, -1, ui.form.plantIndex)
	ui.form.fields[fieldTaskType].Value = "Watering"
	require.NoError(t, ui.submitFormNow(nil, nil))

	require.NotNil(t, ui.form)
	assert.Contains(t, ui.status, "The Plant field is required.")
}

func TestCyclePlantWraps(t *testing.T) {
	plants := []model.Plant{{PlantID: 1, Name: "Cactus"}, {PlantID: 2, Name: "Fern"}, {PlantID: 3, Name: "Ivy"}}
	fields, index := buildTaskFields(nil, plants, 3)
	ui := &UI{form: &formState{entity: access.MaintenanceTask, fields: fields, plantOptions: plants, plantIndex: index}}

	ui.cyclePlant(1)
	assert.Equal(t, "Cactus", ui.form.fields[fieldPlant].Value)
	ui.cyclePlant(-1)
	assert.Equal(t, "Ivy", ui.form.fields[fieldPlant].Value)

	task, err := parseTaskFields(ui.form.fields, plants, ui.form.plantIndex)
	require.NoError(t, err)
	assert.Equal(t, int64(3), task.PlantID)
}

func TestEditPlantSeesConcurrentChange(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	fern := seedPlant(t, store, "Fern")
	ui := newTestUI(t, store, adminPrincipal)

	require.NoError(t, ui.editItem(nil, nil))
	require.NotNil(t, ui.form)
	assert.Equal(t, fern.Version, ui.form.version)

	updated := fern
	updated.Name = "Boston fern"
	session := store.Session()
	require.NoError(t, session.UpdatePlant(context.Background(), &updated))
	require.NoError(t, session.SaveChanges(context.Background()))
	require.NoError(t, session.Close())

	ui.form.fields[fieldName].Value = "Sword fern"
	require.NoError(t, ui.submitFormNow(nil, nil))

	assert.Nil(t, ui.form)
	assert.Contains(t, ui.status, "changed elsewhere")
	assert.Equal(t, "Boston fern", listPlants(t, store)[0].Name)
}

func TestDeleteAsksBeforeRemoving(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	fern := seedPlant(t, store, "Fern")
	seedTask(t, store, fern.PlantID, "Watering", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	ui := newTestUI(t, store, adminPrincipal)

	require.NoError(t, ui.deleteItem(nil, nil))
	require.NotNil(t, ui.confirm)
	assert.Contains(t, ui.confirm.label, "its 1 maintenance tasks")
	assert.True(t, ui.inputActive())
	require.Len(t, listPlants(t, store), 1)

	require.NoError(t, ui.cancelDelete(nil, nil))
	assert.Nil(t, ui.confirm)
	require.Len(t, listPlants(t, store), 1)

	require.NoError(t, ui.deleteItem(nil, nil))
	require.NoError(t, ui.confirmDelete(nil, nil))
	assert.Nil(t, ui.confirm)
	assert.Empty(t, ui.plantList)
	assert.Empty(t, ui.taskList)
	assert.Contains(t, ui.status, "Deleted plant")
}

func TestConfirmDeleteOfVanishedTask(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	fern := seedPlant(t, store, "Fern")
	task := seedTask(t, store, fern.PlantID, "Watering", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	ui := newTestUI(t, store, adminPrincipal)
	require.NoError(t, ui.focusTasks(nil, nil))

	require.NoError(t, ui.deleteItem(nil, nil))
	require.NotNil(t, ui.confirm)

	session := store.Session()
	require.NoError(t, session.RemoveTask(context.Background(), task.TaskID))
	require.NoError(t, session.SaveChanges(context.Background()))
	require.NoError(t, session.Close())

	require.NoError(t, ui.confirmDelete(nil, nil))
	assert.Equal(t, "Already deleted.", ui.status)
	assert.Empty(t, ui.taskList)
}

func TestRestrictedPlantDeleteWithTasksIsRefused(t *testing.T) {
	store := newTestStore(t, db.OnDeleteRestrict)
	fern := seedPlant(t, store, "Fern")
	seedTask(t, store, fern.PlantID, "Watering", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	ui := newUI(Options{Store: store, Principal: adminPrincipal, OnPlantDelete: db.OnDeleteRestrict})
	require.NoError(t, ui.load())

	require.NoError(t, ui.deleteItem(nil, nil))
	assert.Nil(t, ui.confirm)
	assert.Equal(t, "The plant still has 1 maintenance tasks. Delete them first.", ui.status)
	assert.Len(t, listPlants(t, store), 1)
}

func TestRestrictedPlantDeleteReportsTasks(t *testing.T) {
	store := newTestStore(t, db.OnDeleteRestrict)
	fern := seedPlant(t, store, "Fern")
	ui := newUI(Options{Store: store, Principal: adminPrincipal, OnPlantDelete: db.OnDeleteRestrict})
	require.NoError(t, ui.load())

	require.NoError(t, ui.deleteItem(nil, nil))
	require.NotNil(t, ui.confirm)
	assert.Equal(t, `plant "Fern"`, ui.confirm.label)

	// a task added while the confirmation is open still blocks the delete
	seedTask(t, store, fern.PlantID, "Watering", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, ui.confirmDelete(nil, nil))

	assert.Contains(t, ui.status, "still has maintenance tasks")
	assert.Len(t, listPlants(t, store), 1)
}

func TestStatusFromOutsideTheConsole(t *testing.T) {
	store := newTestStore(t, db.OnDeleteCascade)
	ui := newUI(Options{Store: store, Principal: adminPrincipal, Status: "Web server not started: port in use"})
	require.NoError(t, ui.load())
	assert.Equal(t, "Web server not started: port in use", ui.status)

	ui.notify("Web server stopped: listener closed")
	assert.Equal(t, "Web server stopped: listener closed", ui.status)
}

func TestComputeLayoutFitsHeight(t *testing.T) {
	for _, height := range []int{3, 8, 20, 61} {
		l := computeLayout(120, height)
		assert.GreaterOrEqual(t, l.plantsHeight, 4)
		assert.GreaterOrEqual(t, l.tasksHeight, 4)
		assert.Equal(t, max(height, 8), l.plantsHeight+l.tasksHeight)
		assert.Less(t, l.leftWidth, 120)
	}
}

func TestSummarizeTaskTypes(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	entries := summarizeTaskTypes([]model.MaintenanceTask{
		{TaskType: "Watering", Date: day(1)},
		{TaskType: "Repotting", Date: day(2)},
		{TaskType: "Watering", Date: day(9)},
		{TaskType: "Fertilizing", Date: day(3)},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, "Watering", entries[0].TaskType)
	assert.Equal(t, 2, entries[0].Count)
	assert.Equal(t, day(9), entries[0].Last.Date)
	assert.Equal(t, "Fertilizing", entries[1].TaskType)
	assert.Equal(t, "Repotting", entries[2].TaskType)
}

func TestParseDate(t *testing.T) {
	parsed, err := parseDate("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), parsed)

	parsed, err = parseDate(" ")
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())

	_, err = parseDate("05/01/2024")
	assert.Error(t, err)
}

func newTestUI(t *testing.T, store *db.Store, principal access.Principal) *UI {
	t.Helper()
	ui := newUI(Options{Store: store, Principal: principal})
	require.NoError(t, ui.load())
	return ui
}

func newTestStore(t *testing.T, onDelete string) *db.Store {
	t.Helper()
	conn, err := db.Open(db.Options{DSN: ":memory:", OnPlantDelete: onDelete})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return db.NewStore(conn, db.DriverSQLite)
}

func seedPlant(t *testing.T, store *db.Store, name string) model.Plant {
	t.Helper()
	plant := model.Plant{Name: name}
	session := store.Session()
	defer session.Close()
	require.NoError(t, session.InsertPlant(context.Background(), &plant))
	require.NoError(t, session.SaveChanges(context.Background()))
	return plant
}

func seedTask(t *testing.T, store *db.Store, plantID int64, taskType string, date time.Time) model.MaintenanceTask {
	t.Helper()
	task := model.MaintenanceTask{TaskType: taskType, Date: date, PlantID: plantID}
	session := store.Session()
	defer session.Close()
	require.NoError(t, session.InsertTask(context.Background(), &task))
	require.NoError(t, session.SaveChanges(context.Background()))
	return task
}

func listPlants(t *testing.T, store *db.Store) []model.Plant {
	t.Helper()
	session := store.Session()
	defer session.Close()
	plants, err := session.ListPlants(context.Background())
	require.NoError(t, err)
	return plants
}
