package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Joseda-hg/plantcare/internal/model"
)

const plantColumns = "plant_id, name, description, version"

func (s *Session) ListPlants(ctx context.Context) ([]model.Plant, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, "SELECT "+plantColumns+" FROM plants ORDER BY plant_id")
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	defer rows.Close()

	plants := []model.Plant{}
	for rows.Next() {
		var plant model.Plant
		if err := rows.Scan(&plant.PlantID, &plant.Name, &plant.Description, &plant.Version); err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		plants = append(plants, plant)
	}
	return plants, rows.Err()
}

func (s *Session) FindPlant(ctx context.Context, plantID int64) (model.Plant, error) {
	q, err := s.reader()
	if err != nil {
		return model.Plant{}, err
	}

	var plant model.Plant
	err = q.QueryRowContext(ctx, s.rebind("SELECT "+plantColumns+" FROM plants WHERE plant_id = ?"), plantID).
		Scan(&plant.PlantID, &plant.Name, &plant.Description, &plant.Version)
	if err != nil {
		return model.Plant{}, fmt.Errorf("find plant %d: %w", plantID, translateError(err))
	}
	return plant, nil
}

func (s *Session) PlantExists(ctx context.Context, plantID int64) (bool, error) {
	q, err := s.reader()
	if err != nil {
		return false, err
	}

	var exists int
	err = q.QueryRowContext(ctx, s.rebind("SELECT 1 FROM plants WHERE plant_id = ?"), plantID).Scan(&exists)
	if err != nil {
		if errors.Is(translateError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check plant %d: %w", plantID, err)
	}
	return true, nil
}

// InsertPlant stages a new plant and fills in its generated id and version.
func (s *Session) InsertPlant(ctx context.Context, plant *model.Plant) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	err = q.QueryRowContext(ctx,
		s.rebind("INSERT INTO plants (name, description, version) VALUES (?, ?, 1) RETURNING plant_id, version"),
		plant.Name, plant.Description,
	).Scan(&plant.PlantID, &plant.Version)
	if err != nil {
		return fmt.Errorf("insert plant: %w", translateError(err))
	}
	return nil
}

// UpdatePlant writes name and description when the stored version still
// matches plant.Version. A zero Version skips the version comparison. It
// returns ErrConcurrency when no row matched.
func (s *Session) UpdatePlant(ctx context.Context, plant *model.Plant) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx,
		s.rebind("UPDATE plants SET name = ?, description = ?, version = version + 1 WHERE plant_id = ? AND (? = 0 OR version = ?)"),
		plant.Name, plant.Description, plant.PlantID, plant.Version, plant.Version,
	)
	if err != nil {
		return fmt.Errorf("update plant %d: %w", plant.PlantID, translateError(err))
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("update plant %d: %w", plant.PlantID, err)
	}

	err = q.QueryRowContext(ctx, s.rebind("SELECT version FROM plants WHERE plant_id = ?"), plant.PlantID).Scan(&plant.Version)
	if err != nil {
		return fmt.Errorf("reload plant %d version: %w", plant.PlantID, translateError(err))
	}
	return nil
}

func (s *Session) RemovePlant(ctx context.Context, plantID int64) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, s.rebind("DELETE FROM plants WHERE plant_id = ?"), plantID)
	if err != nil {
		return fmt.Errorf("delete plant %d: %w", plantID, translateError(err))
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("delete plant %d: %w", plantID, err)
	}
	return nil
}

func expectOneRow(result interface{ RowsAffected() (int64, error) }) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrency
	}
	return nil
}
