package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Joseda-hg/plantcare/internal/model"
)

type taskTypeEntry struct {
	TaskType string
	Count    int
	Last     model.MaintenanceTask
}

func formatPlantSummary(plant model.Plant) string {
	if plant.Description == "" {
		return plant.Name
	}
	return fmt.Sprintf("%s | %s", plant.Name, firstLine(plant.Description))
}

func formatTaskSummary(task model.MaintenanceTask) string {
	return fmt.Sprintf("%s | %s", task.Date.UTC().Format(dateLayout), task.TaskType)
}

// summarizeTaskTypes counts the tasks of a plant per type, most frequent
// first, keeping the latest task of each type.
func summarizeTaskTypes(tasks []model.MaintenanceTask) []taskTypeEntry {
	byType := make(map[string]*taskTypeEntry)
	for _, task := range tasks {
		entry, ok := byType[task.TaskType]
		if !ok {
			entry = &taskTypeEntry{TaskType: task.TaskType, Last: task}
			byType[task.TaskType] = entry
		}
		entry.Count++
		if task.Date.After(entry.Last.Date) {
			entry.Last = task
		}
	}

	entries := make([]taskTypeEntry, 0, len(byType))
	for _, entry := range byType {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count == entries[j].Count {
			return entries[i].TaskType < entries[j].TaskType
		}
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func firstLine(value string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(value), "\n")
	return line
}
