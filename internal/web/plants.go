package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/care"
	"github.com/Joseda-hg/plantcare/internal/model"
	"github.com/labstack/echo/v4"
)

func (s *Server) plantRoutes(e *echo.Echo) {
	g := e.Group("/plants")
	g.GET("", s.plantIndex, s.guard(access.Plant, access.List))
	g.GET("/create", s.plantCreateForm, s.guard(access.Plant, access.Create))
	g.POST("/create", s.plantCreate, s.guard(access.Plant, access.Create))
	g.GET("/:id", s.plantDetails, s.guard(access.Plant, access.Details))
	g.GET("/:id/edit", s.plantEditForm, s.guard(access.Plant, access.Edit))
	g.POST("/:id/edit", s.plantEdit, s.guard(access.Plant, access.Edit))
	g.GET("/:id/delete", s.plantDelete, s.guard(access.Plant, access.Delete))
	g.POST("/:id/delete", s.plantConfirmDelete, s.guard(access.Plant, access.ConfirmDelete))
}

type plantDetails struct {
	Plant model.Plant
	Tasks []model.MaintenanceTask
}

func (s *Server) plantIndex(c echo.Context) error {
	plants, err := s.plants.ListAll(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, "plants_index", s.newView(c, "Plants", plants))
}

func (s *Server) plantDetails(c echo.Context) error {
	ctx := c.Request().Context()
	session := sessionFrom(c)

	res, err := s.plants.GetByID(ctx, session, idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	tasks, err := s.plants.Tasks(ctx, session, res.Value.PlantID)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, "plants_details", s.newView(c, "Plant details", plantDetails{Plant: res.Value, Tasks: tasks}))
}

func (s *Server) plantCreateForm(c echo.Context) error {
	return s.renderPlantForm(c, http.StatusOK, "Create plant", "/plants/create", model.Plant{}, nil)
}

func (s *Server) plantCreate(c echo.Context) error {
	input, errs := bindPlant(c)
	if errs.Any() {
		return s.renderPlantForm(c, http.StatusBadRequest, "Create plant", "/plants/create", input, errs)
	}

	res, err := s.plants.Create(c.Request().Context(), sessionFrom(c), input)
	if err != nil {
		return err
	}
	if res.Status == care.StatusInvalid {
		return s.renderPlantForm(c, http.StatusBadRequest, "Create plant", "/plants/create", res.Value, res.Errors)
	}
	return c.Redirect(http.StatusSeeOther, "/plants")
}

func (s *Server) plantEditForm(c echo.Context) error {
	res, err := s.plants.GetByID(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return s.renderPlantForm(c, http.StatusOK, "Edit plant", editPath("plants", res.Value.PlantID), res.Value, nil)
}

func (s *Server) plantEdit(c echo.Context) error {
	id := idParam(c)
	input, errs := bindPlant(c)
	if errs.Any() {
		return s.renderPlantForm(c, http.StatusBadRequest, "Edit plant", editPath("plants", id), input, errs)
	}

	res, err := s.plants.Update(c.Request().Context(), sessionFrom(c), id, input)
	if err != nil {
		return err
	}
	switch res.Status {
	case care.StatusOK:
		return c.Redirect(http.StatusSeeOther, "/plants")
	case care.StatusInvalid:
		return s.renderPlantForm(c, http.StatusBadRequest, "Edit plant", editPath("plants", id), res.Value, res.Errors)
	case care.StatusConflict:
		return fmt.Errorf("plant %d was changed by another user", id)
	default:
		return notFound()
	}
}

func (s *Server) plantDelete(c echo.Context) error {
	res, err := s.plants.Delete(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return s.render(c, http.StatusOK, "plants_delete", s.newView(c, "Delete plant", res.Value))
}

func (s *Server) plantConfirmDelete(c echo.Context) error {
	res, err := s.plants.ConfirmDelete(c.Request().Context(), sessionFrom(c), idParam(c))
	if err != nil {
		return err
	}
	if !res.OK() {
		return notFound()
	}
	return c.Redirect(http.StatusSeeOther, "/plants")
}

func (s *Server) renderPlantForm(c echo.Context, code int, title, action string, plant model.Plant, errs care.FieldErrors) error {
	v := s.newView(c, title, plant)
	v.Action = action
	v.Errors = errs
	return s.render(c, code, "plants_form", v)
}

// bindPlant reads the plant form. Malformed hidden fields are reported as
// field errors instead of failing the request.
func bindPlant(c echo.Context) (model.Plant, care.FieldErrors) {
	errs := care.FieldErrors{}
	plant := model.Plant{
		Name:        c.FormValue("Name"),
		Description: c.FormValue("Description"),
	}
	plant.PlantID = formInt(c, "PlantID", errs)
	plant.Version = formInt(c, "Version", errs)
	return plant, errs
}

func formInt(c echo.Context, field string, errs care.FieldErrors) int64 {
	value := strings.TrimSpace(c.FormValue(field))
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		errs.Add(field, fmt.Sprintf("The value '%s' is not valid for %s.", value, field))
		return 0
	}
	return n
}

func editPath(collection string, id int64) string {
	return fmt.Sprintf("/%s/%d/edit", collection, id)
}
