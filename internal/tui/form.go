package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/plantcare/internal/model"
)

type formField struct {
	Label string
	Value string
}

const (
	fieldName = iota
	fieldDescription
)

const (
	fieldTaskType = iota
	fieldDate
	fieldPlant
)

const dateLayout = "2006-01-02 15:04"

var dateLayouts = []string{dateLayout, "2006-01-02"}

func buildPlantFields(plant *model.Plant) []formField {
	fields := []formField{
		{Label: "Name"},
		{Label: "Description"},
	}
	if plant == nil {
		return fields
	}
	fields[fieldName].Value = plant.Name
	fields[fieldDescription].Value = plant.Description
	return fields
}

// buildTaskFields returns the task form and the index of the selected plant
// in plants, or -1 when there is nothing to pick.
func buildTaskFields(task *model.MaintenanceTask, plants []model.Plant, defaultPlant int64) ([]formField, int) {
	fields := []formField{
		{Label: "Task type"},
		{Label: "Date (YYYY-MM-DD HH:MM)"},
		{Label: "Plant (space/←→)"},
	}

	plantID := defaultPlant
	if task == nil {
		fields[fieldDate].Value = time.Now().UTC().Format(dateLayout)
	} else {
		fields[fieldTaskType].Value = task.TaskType
		if !task.Date.IsZero() {
			fields[fieldDate].Value = task.Date.UTC().Format(dateLayout)
		}
		plantID = task.PlantID
	}

	index := plantIndex(plants, plantID)
	if index < 0 && len(plants) > 0 {
		index = 0
	}
	if index >= 0 {
		fields[fieldPlant].Value = plants[index].Name
	}
	return fields, index
}

func parsePlantFields(fields []formField) model.Plant {
	return model.Plant{
		Name:        strings.TrimSpace(fields[fieldName].Value),
		Description: strings.TrimSpace(fields[fieldDescription].Value),
	}
}

func parseTaskFields(fields []formField, plants []model.Plant, selected int) (model.MaintenanceTask, error) {
	date, err := parseDate(fields[fieldDate].Value)
	if err != nil {
		return model.MaintenanceTask{}, err
	}

	task := model.MaintenanceTask{
		TaskType: strings.TrimSpace(fields[fieldTaskType].Value),
		Date:     date,
	}
	if selected >= 0 && selected < len(plants) {
		task.PlantID = plants[selected].PlantID
	}
	return task, nil
}

// parseDate reads a form date as UTC. An empty value yields the zero time,
// which validation reports as a missing date.
func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", trimmed)
}

func plantIndex(plants []model.Plant, plantID int64) int {
	for i, plant := range plants {
		if plant.PlantID == plantID {
			return i
		}
	}
	return -1
}
