package web

import (
	"net/http"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/labstack/echo/v4"
)

// apiRoutes exposes the read side as JSON. There are no write endpoints.
func (s *Server) apiRoutes(g *echo.Group) {
	g.GET("/plants", s.apiPlants, s.guard(access.Plant, access.List))
	g.GET("/plants/:id", s.apiPlant, s.guard(access.Plant, access.Details))
	g.GET("/tasks", s.apiTasks, s.guard(access.MaintenanceTask, access.List))
	g.GET("/tasks/:id", s.apiTask, s.guard(access.MaintenanceTask, access.Details))
}

func (s *Server) apiPlants(c echo.Context) error {
	plants, err := s.plants.ListAll(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, plants)
}

func (s *Server) apiPlant(c echo.Context) error {
	ctx := c.Request().Context()
	session := sessionFrom(c)

	res, err := s.plants.GetByID(ctx, session, idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	plant := res.Value
	tasks, err := s.plants.Tasks(ctx, session, plant.PlantID)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].Plant = nil
	}
	plant.MaintenanceTasks = tasks
	return c.JSON(http.StatusOK, plant)
}

func (s *Server) apiTasks(c echo.Context) error {
	tasks, err := s.tasks.ListAll(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) apiTask(c echo.Context) error {
	res, err := s.tasks.GetByID(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return c.JSON(http.StatusOK, res.Value)
}
