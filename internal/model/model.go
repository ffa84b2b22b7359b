package model

import "time"

type Plant struct {
	PlantID          int64             `json:"plantId"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Version          int64             `json:"version"`
	MaintenanceTasks []MaintenanceTask `json:"maintenanceTasks,omitempty"`
}

// MaintenanceTask belongs to exactly one plant. Plant is only set when the
// owning plant was loaded alongside the task.
type MaintenanceTask struct {
	TaskID   int64     `json:"taskId"`
	TaskType string    `json:"taskType"`
	Date     time.Time `json:"date"`
	PlantID  int64     `json:"plantId"`
	Version  int64     `json:"version"`
	Plant    *Plant    `json:"plant,omitempty"`
}

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}
