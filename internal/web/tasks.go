package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/care"
	"github.com/Joseda-hg/plantcare/internal/model"
	"github.com/labstack/echo/v4"
)

var formDateLayouts = []string{inputDateLayout, "2006-01-02T15:04:05", "2006-01-02", time.RFC3339}

func (s *Server) taskRoutes(e *echo.Echo) {
	g := e.Group("/tasks")
	g.GET("", s.taskIndex, s.guard(access.MaintenanceTask, access.List))
	g.GET("/create", s.taskCreateForm, s.guard(access.MaintenanceTask, access.Create))
	g.POST("/create", s.taskCreate, s.guard(access.MaintenanceTask, access.Create))
	g.GET("/:id", s.taskDetails, s.guard(access.MaintenanceTask, access.Details))
	g.GET("/:id/edit", s.taskEditForm, s.guard(access.MaintenanceTask, access.Edit))
	g.POST("/:id/edit", s.taskEdit, s.guard(access.MaintenanceTask, access.Edit))
	g.GET("/:id/delete", s.taskDelete, s.guard(access.MaintenanceTask, access.Delete))
	g.POST("/:id/delete", s.taskConfirmDelete, s.guard(access.MaintenanceTask, access.ConfirmDelete))
}

type taskForm struct {
	Task   model.MaintenanceTask
	Plants []model.Plant
}

func (s *Server) taskIndex(c echo.Context) error {
	tasks, err := s.tasks.ListAll(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, "tasks_index", s.newView(c, "Maintenance tasks", tasks))
}

func (s *Server) taskDetails(c echo.Context) error {
	res, err := s.tasks.GetByID(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return s.render(c, http.StatusOK, "tasks_details", s.newView(c, "Maintenance task details", res.Value))
}

func (s *Server) taskCreateForm(c echo.Context) error {
	task := model.MaintenanceTask{Date: time.Now().Truncate(time.Minute)}
	return s.renderTaskForm(c, http.StatusOK, "Create maintenance task", "/tasks/create", task, nil)
}

func (s *Server) taskCreate(c echo.Context) error {
	input, errs := bindTask(c)
	if errs.Any() {
		return s.renderTaskForm(c, http.StatusBadRequest, "Create maintenance task", "/tasks/create", input, errs)
	}

	res, err := s.tasks.Create(c.Request().Context(), sessionFrom(c), input)
	if err != nil {
		return err
	}
	if res.Status == care.StatusInvalid {
		return s.renderTaskForm(c, http.StatusBadRequest, "Create maintenance task", "/tasks/create", res.Value, res.Errors)
	}
	return c.Redirect(http.StatusSeeOther, "/tasks")
}

func (s *Server) taskEditForm(c echo.Context) error {
	res, err := s.tasks.GetByID(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return s.renderTaskForm(c, http.StatusOK, "Edit maintenance task", editPath("tasks", res.Value.TaskID), res.Value, nil)
}

func (s *Server) taskEdit(c echo.Context) error {
	id := idParam(c)
	input, errs := bindTask(c)
	if errs.Any() {
		return s.renderTaskForm(c, http.StatusBadRequest, "Edit maintenance task", editPath("tasks", id), input, errs)
	}

	res, err := s.tasks.Update(c.Request().Context(), sessionFrom(c), id, input)
	if err != nil {
		return err
	}
	switch res.Status {
	case care.StatusOK:
		return c.Redirect(http.StatusSeeOther, "/tasks")
	case care.StatusInvalid:
		return s.renderTaskForm(c, http.StatusBadRequest, "Edit maintenance task", editPath("tasks", id), res.Value, res.Errors)
	case care.StatusConflict:
		return fmt.Errorf("maintenance task %d was changed by another user", id)
	default:
		return notFound()
	}
}

func (s *Server) taskDelete(c echo.Context) error {
	res, err := s.tasks.Delete(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return s.render(c, http.StatusOK, "tasks_delete", s.newView(c, "Delete maintenance task", res.Value))
}

func (s *Server) taskConfirmDelete(c echo.Context) error {
	res, err := s.tasks.ConfirmDelete(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return c.Redirect(http.StatusSeeOther, "/tasks")
}

// renderTaskForm shows the task form with the plant dropdown filled in.
func (s *Server) renderTaskForm(c echo.Context, code int, title, action string, task model.MaintenanceTask, errs care.FieldErrors) error {
	plants, err := s.tasks.PlantOptions(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	v := s.newView(c, title, taskForm{Task: task, Plants: plants})
	v.Action = action
	v.Errors = errs
	return s.render(c, code, "tasks_form", v)
}

func bindTask(c echo.Context) (model.MaintenanceTask, care.FieldErrors) {
	errs := care.FieldErrors{}
	task := model.MaintenanceTask{TaskType: c.FormValue("TaskType")}
	task.TaskID = formInt(c, "TaskID", errs)
	task.Version = formInt(c, "Version", errs)
	task.PlantID = formInt(c, "PlantID", errs)

	if value := strings.TrimSpace(c.FormValue("Date")); value != "" {
		date, err := parseFormDate(value)
		if err != nil {
			errs.Add("Date", fmt.Sprintf("The value '%s' is not valid for Date.", value))
		}
		task.Date = date
	}
	return task, errs
}

func parseFormDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range formDateLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
