// Package tui is the terminal console for browsing and maintaining plants
// and their maintenance tasks. Every action runs in its own store session
// and passes the same access policy as the web pages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/care"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
)

const (
	viewHeader  = "header"
	viewFooter  = "footer"
	viewPlants  = "plants"
	viewTasks   = "tasks"
	viewDetails = "details"
	viewForm    = "form"
	viewConfirm = "confirm"
	viewHelp    = "help"
)

type Options struct {
	Store     *db.Store
	Policy    *access.Policy
	Principal access.Principal
	Recorder  care.Recorder
	Logger    *slog.Logger
	// OnPlantDelete is the store's policy for the tasks of a deleted plant,
	// db.OnDeleteCascade (the default) or db.OnDeleteRestrict.
	OnPlantDelete string
	// Status is shown in the status line when the console opens.
	Status string
	// Notices are shown in the status line as they arrive. The console
	// stops reading when the channel is closed.
	Notices <-chan string
}

type UI struct {
	store     *db.Store
	plants    *care.PlantService
	tasks     *care.TaskService
	policy    *access.Policy
	principal access.Principal
	logger    *slog.Logger
	restrict  bool

	plantList []model.Plant
	taskList  []model.MaintenanceTask

	selectedPlant int
	selectedTask  int
	focus         string

	form       *formState
	formEditor *formEditor
	confirm    *pendingDelete
	helpActive bool
	status     string
}

type formState struct {
	entity  access.Entity
	id      int64
	version int64
	fields  []formField
	index   int

	// plant picker for task forms
	plantOptions []model.Plant
	plantIndex   int
}

// pendingDelete is a delete waiting for the second confirmation step.
type pendingDelete struct {
	entity access.Entity
	id     int64
	label  string
}

type formEditor struct {
	ui *UI
}

func newUI(opts Options) *UI {
	policy := opts.Policy
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ui := &UI{
		store:     opts.Store,
		plants:    care.NewPlantService(opts.Recorder),
		tasks:     care.NewTaskService(opts.Recorder),
		policy:    policy,
		principal: opts.Principal,
		logger:    logger,
		restrict:  opts.OnPlantDelete == db.OnDeleteRestrict,
		focus:     viewPlants,
		status:    opts.Status,
	}
	ui.formEditor = &formEditor{ui: ui}
	return ui
}

func Run(opts Options) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(opts)
	gui.Mouse = true

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.load(); err != nil {
		return err
	}
	if opts.Notices != nil {
		go func() {
			for msg := range opts.Notices {
				gui.Update(func(*gocui.Gui) error {
					ui.notify(msg)
					return nil
				})
			}
		}()
	}

	if err := gui.MainLoop(); err != nil && !goerrors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

// notify shows a message from outside the console, such as the web server
// stopping, in the status line.
func (u *UI) notify(msg string) {
	u.logger.Warn("notice", "message", msg)
	u.status = msg
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.exit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.reload); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'a', gocui.ModNone, u.addItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'e', gocui.ModNone, u.editItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'd', gocui.ModNone, u.deleteItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '?', gocui.ModNone, u.toggleHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, u.switchFocus); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '1', gocui.ModNone, u.focusPlants); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '2', gocui.ModNone, u.focusTasks); err != nil {
		return err
	}
	for _, name := range []string{viewPlants, viewTasks} {
		if err := gui.SetKeybinding(name, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'j', gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'k', gocui.ModNone, u.moveUp); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewPlants, gocui.KeyEnter, gocui.ModNone, u.focusTasks); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEnter, gocui.ModNone, u.submitFormNow); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyCtrlJ, gocui.ModNone, u.submitFormNow); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyTab, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyBacktab, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowDown, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowUp, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEsc, gocui.ModNone, u.cancelForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewConfirm, 'y', gocui.ModNone, u.confirmDelete); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewConfirm, 'n', gocui.ModNone, u.cancelDelete); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewConfirm, gocui.KeyEsc, gocui.ModNone, u.cancelDelete); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, gocui.KeyEsc, gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, '?', gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	for _, name := range []string{viewPlants, viewTasks} {
		viewName := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: viewName, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, viewName, opts)
		}}); err != nil {
			return err
		}
	}
	return u.bindMouseScroll(gui)
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	l := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX1 := l.leftWidth - 1
	rightX0 := min(leftX1+1, maxX-1)
	plantsY1 := bodyTop + l.plantsHeight - 1

	plantsView, err := gui.SetView(viewPlants, 0, bodyTop, leftX1, plantsY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		plantsView.Title = "1 Plants"
		plantsView.TitleColor = gocui.ColorGreen
	}
	applyViewStyle(plantsView, u.focus == viewPlants, true)
	u.renderPlantList(plantsView)

	tasksView, err := gui.SetView(viewTasks, 0, plantsY1+1, leftX1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	tasksView.Title = "2 Maintenance"
	if plant := u.selectedPlantItem(); plant != nil {
		tasksView.Title = "2 Maintenance: " + plant.Name
	}
	applyViewStyle(tasksView, u.focus == viewTasks, true)
	u.renderTaskList(tasksView)

	detailsView, err := gui.SetView(viewDetails, rightX0, bodyTop, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailsView.Title = "Details"
		detailsView.Wrap = true
	}
	applyViewStyle(detailsView, false, false)
	u.renderDetails(detailsView)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.confirm != nil {
		if err := u.showConfirm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewConfirm)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	gui.Cursor = u.form != nil
	return nil
}

type layout struct {
	leftWidth    int
	plantsHeight int
	tasksHeight  int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 2
	if leftWidth < 30 {
		leftWidth = 30
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	plantsHeight := max(int(float64(safeHeight)*0.5), 4)
	tasksHeight := safeHeight - plantsHeight
	if tasksHeight < 4 {
		tasksHeight = 4
		plantsHeight = max(safeHeight-tasksHeight, 4)
	}

	return layout{
		leftWidth:    leftWidth,
		plantsHeight: plantsHeight,
		tasksHeight:  tasksHeight,
	}
}

// inSession runs fn in a fresh unit of work. Whatever fn does not save is
// rolled back.
func (u *UI) inSession(fn func(ctx context.Context, session *db.Session) error) error {
	session := u.store.Session()
	defer session.Close()
	return fn(context.Background(), session)
}

// load refreshes the plant list and the tasks of the selected plant.
func (u *UI) load() error {
	return u.inSession(func(ctx context.Context, session *db.Session) error {
		plants, err := u.plants.ListAll(ctx, session)
		if err != nil {
			return err
		}
		u.plantList = plants
		u.selectedPlant = clampIndex(u.selectedPlant, len(plants))
		return u.loadTasksIn(ctx, session)
	})
}

func (u *UI) loadTasks() error {
	return u.inSession(u.loadTasksIn)
}

func (u *UI) loadTasksIn(ctx context.Context, session *db.Session) error {
	plant := u.selectedPlantItem()
	if plant == nil {
		u.taskList = nil
		u.selectedTask = 0
		return nil
	}
	tasks, err := u.plants.Tasks(ctx, session, plant.PlantID)
	if err != nil {
		return err
	}
	u.taskList = tasks
	u.selectedTask = clampIndex(u.selectedTask, len(tasks))
	return nil
}

func (u *UI) selectedPlantItem() *model.Plant {
	if u.selectedPlant >= 0 && u.selectedPlant < len(u.plantList) {
		return &u.plantList[u.selectedPlant]
	}
	return nil
}

func (u *UI) selectedTaskItem() *model.MaintenanceTask {
	if u.selectedTask >= 0 && u.selectedTask < len(u.taskList) {
		return &u.taskList[u.selectedTask]
	}
	return nil
}

// focusedEntity is the entity the add, edit and delete keys act on.
func (u *UI) focusedEntity() access.Entity {
	if u.focus == viewTasks {
		return access.MaintenanceTask
	}
	return access.Plant
}

// allowed checks the policy and leaves the refusal in the status line.
func (u *UI) allowed(entity access.Entity, op access.Operation) bool {
	err := u.policy.Authorize(u.principal, entity, op)
	if err == nil {
		return true
	}
	u.logger.Info("console action denied", "entity", entity, "operation", op, "error", err)
	if errors.Is(err, access.ErrUnauthenticated) {
		u.status = "Read-only console: restart without --read-only to make changes."
	} else {
		u.status = "Only administrators can change plants and maintenance tasks."
	}
	return false
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	who := "anonymous (read-only)"
	if u.principal.Authenticated {
		who = u.principal.Email
		if u.principal.HasRole(access.RoleAdmin) {
			who += " (admin)"
		}
	}
	fmt.Fprintf(view, "plantcare | %d plants | %s", len(u.plantList), who)
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)
	view.SetCursor(0, 0)

	fmt.Fprintln(view, "a add | e edit | d delete | enter open tasks/save | tab field/pane | 1-2 panes")
	fmt.Fprintln(view, "j/k move | r reload | ? help | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) renderPlantList(view *gocui.View) {
	view.Clear()
	if len(u.plantList) == 0 {
		fmt.Fprint(view, "  No plants yet")
		return
	}
	for i, plant := range u.plantList {
		fmt.Fprintf(view, "%s %s\n", selectionPrefix(i == u.selectedPlant, u.focus == viewPlants), formatPlantSummary(plant))
	}
	if u.focus == viewPlants {
		view.SetCursor(0, min(u.selectedPlant, len(u.plantList)-1))
	}
}

func (u *UI) renderTaskList(view *gocui.View) {
	view.Clear()
	if len(u.taskList) == 0 {
		fmt.Fprint(view, "  No maintenance recorded")
		return
	}
	for i, task := range u.taskList {
		fmt.Fprintf(view, "%s %s\n", selectionPrefix(i == u.selectedTask, u.focus == viewTasks), formatTaskSummary(task))
	}
	if u.focus == viewTasks {
		view.SetCursor(0, min(u.selectedTask, len(u.taskList)-1))
	}
}

func selectionPrefix(selected, focused bool) string {
	switch {
	case selected && focused:
		return ">"
	case selected:
		return "*"
	default:
		return " "
	}
}

func (u *UI) renderDetails(view *gocui.View) {
	view.Clear()
	fmt.Fprint(view, u.detailsText())
}

func (u *UI) detailsText() string {
	if u.focus == viewTasks {
		task := u.selectedTaskItem()
		if task == nil {
			return "No maintenance task selected"
		}
		plantName := ""
		if task.Plant != nil {
			plantName = task.Plant.Name
		}
		return strings.Join([]string{
			fmt.Sprintf("Task #%d", task.TaskID),
			"Type: " + task.TaskType,
			"Date: " + task.Date.UTC().Format(dateLayout),
			"Plant: " + plantName,
			fmt.Sprintf("Version: %d", task.Version),
		}, "\n")
	}

	plant := u.selectedPlantItem()
	if plant == nil {
		return "No plant selected"
	}
	lines := []string{
		fmt.Sprintf("Plant #%d", plant.PlantID),
		"Name: " + plant.Name,
		fmt.Sprintf("Version: %d", plant.Version),
		"",
		plant.Description,
		"",
		fmt.Sprintf("Maintenance (%d)", len(u.taskList)),
	}
	for _, entry := range summarizeTaskTypes(u.taskList) {
		lines = append(lines, fmt.Sprintf("  %s x%d, last %s", entry.TaskType, entry.Count, entry.Last.Date.UTC().Format(dateLayout)))
	}
	return strings.Join(lines, "\n")
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	view, err := gui.View(viewName)
	if err != nil {
		return nil
	}

	_, y0, _, _ := view.Dimensions()
	_, oy := view.Origin()
	row := max(opts.Y-y0-1+oy, 0)

	switch viewName {
	case viewPlants:
		if row < len(u.plantList) && row != u.selectedPlant {
			u.selectedPlant = row
			u.selectedTask = 0
		}
		return u.setFocus(gui, viewPlants)
	case viewTasks:
		u.selectedTask = clampIndex(row, len(u.taskList))
		return u.setFocus(gui, viewTasks)
	default:
		return nil
	}
}

func (u *UI) bindMouseScroll(gui *gocui.Gui) error {
	for _, name := range []string{viewPlants, viewTasks, viewDetails} {
		if err := gui.SetKeybinding(name, gocui.MouseWheelUp, gocui.ModNone, u.scrollUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.MouseWheelDown, gocui.ModNone, u.scrollDown); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) scrollUp(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view != nil {
		view.ScrollUp(1)
	}
	return nil
}

func (u *UI) scrollDown(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view != nil {
		view.ScrollDown(1)
	}
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.focus == viewPlants {
		return u.setFocus(gui, viewTasks)
	}
	return u.setFocus(gui, viewPlants)
}

func (u *UI) focusPlants(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewPlants)
}

func (u *UI) focusTasks(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewTasks)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	u.setCurrentView(gui, name)
	return u.loadTasks()
}

func (u *UI) moveDown(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewPlants:
		if u.selectedPlant < len(u.plantList)-1 {
			u.selectedPlant++
			u.selectedTask = 0
			return u.loadTasks()
		}
	case viewTasks:
		if u.selectedTask < len(u.taskList)-1 {
			u.selectedTask++
		}
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewPlants:
		if u.selectedPlant > 0 {
			u.selectedPlant--
			u.selectedTask = 0
			return u.loadTasks()
		}
	case viewTasks:
		if u.selectedTask > 0 {
			u.selectedTask--
		}
	}
	return nil
}

func (u *UI) reload(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	return u.load()
}

func (u *UI) addItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	entity := u.focusedEntity()
	if !u.allowed(entity, access.Create) {
		return nil
	}

	if entity == access.Plant {
		u.form = &formState{entity: access.Plant, fields: buildPlantFields(nil)}
		return nil
	}

	var defaultPlant int64
	if plant := u.selectedPlantItem(); plant != nil {
		defaultPlant = plant.PlantID
	}
	return u.inSession(func(ctx context.Context, session *db.Session) error {
		plants, err := u.tasks.PlantOptions(ctx, session)
		if err != nil {
			return err
		}
		fields, index := buildTaskFields(nil, plants, defaultPlant)
		u.form = &formState{entity: access.MaintenanceTask, fields: fields, plantOptions: plants, plantIndex: index}
		return nil
	})
}

// editItem reloads the selected row so the form carries the current version.
func (u *UI) editItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	entity := u.focusedEntity()
	if !u.allowed(entity, access.Edit) {
		return nil
	}

	return u.inSession(func(ctx context.Context, session *db.Session) error {
		if entity == access.Plant {
			selected := u.selectedPlantItem()
			if selected == nil {
				return nil
			}
			res, err := u.plants.GetByID(ctx, session, selected.PlantID)
			if err != nil {
				return err
			}
			if !res.OK() {
				u.status = "That plant no longer exists."
				return u.refreshIn(ctx, session)
			}
			u.form = &formState{entity: access.Plant, id: res.Value.PlantID, version: res.Value.Version, fields: buildPlantFields(&res.Value)}
			return nil
		}

		selected := u.selectedTaskItem()
		if selected == nil {
			return nil
		}
		res, err := u.tasks.GetByID(ctx, session, selected.TaskID)
		if err != nil {
			return err
		}
		if !res.OK() {
			u.status = "That maintenance task no longer exists."
			return u.refreshIn(ctx, session)
		}
		plants, err := u.tasks.PlantOptions(ctx, session)
		if err != nil {
			return err
		}
		fields, index := buildTaskFields(&res.Value, plants, 0)
		u.form = &formState{
			entity:       access.MaintenanceTask,
			id:           res.Value.TaskID,
			version:      res.Value.Version,
			fields:       fields,
			plantOptions: plants,
			plantIndex:   index,
		}
		return nil
	})
}

func (u *UI) refreshIn(ctx context.Context, session *db.Session) error {
	plants, err := u.plants.ListAll(ctx, session)
	if err != nil {
		return err
	}
	u.plantList = plants
	u.selectedPlant = clampIndex(u.selectedPlant, len(plants))
	return u.loadTasksIn(ctx, session)
}

func (u *UI) showForm(gui *gocui.Gui) error {
	if u.form == nil {
		return nil
	}

	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(10, max(6, maxY/2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	view.Title = formTitle(u.form)
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func formTitle(form *formState) string {
	noun := "Plant"
	if form.entity == access.MaintenanceTask {
		noun = "Maintenance Task"
	}
	if form.id != 0 {
		return "Edit " + noun
	}
	return "New " + noun
}

func (u *UI) submitFormNow(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}
	op := access.Create
	if u.form.id != 0 {
		op = access.Edit
	}
	if !u.allowed(u.form.entity, op) {
		return nil
	}

	var (
		status care.Status
		errs   care.FieldErrors
	)
	err := u.inSession(func(ctx context.Context, session *db.Session) error {
		var err error
		if u.form.entity == access.Plant {
			status, errs, err = u.savePlant(ctx, session)
		} else {
			status, errs, err = u.saveTask(ctx, session)
		}
		return err
	})
	if err != nil {
		var parseErr *formParseError
		if errors.As(err, &parseErr) {
			u.status = parseErr.Error()
			return nil
		}
		if errors.Is(err, db.ErrReferentialIntegrity) {
			u.status = "The selected plant no longer exists."
			return nil
		}
		return err
	}

	switch status {
	case care.StatusInvalid:
		u.status = errs.Error()
		return nil
	case care.StatusNotFound:
		u.status = "That record no longer exists."
	case care.StatusConflict:
		u.status = "The record was changed elsewhere. Reload and try again."
		u.logger.Warn("console edit conflict", "entity", u.form.entity, "id", u.form.id)
	default:
		u.status = "Saved."
	}

	u.closeForm(gui)
	return u.load()
}

type formParseError struct {
	err error
}

func (e *formParseError) Error() string {
	return e.err.Error()
}

func (u *UI) savePlant(ctx context.Context, session *db.Session) (care.Status, care.FieldErrors, error) {
	input := parsePlantFields(u.form.fields)
	input.PlantID = u.form.id
	input.Version = u.form.version

	if u.form.id == 0 {
		res, err := u.plants.Create(ctx, session, input)
		return res.Status, res.Errors, err
	}
	res, err := u.plants.Update(ctx, session, u.form.id, input)
	return res.Status, res.Errors, err
}

func (u *UI) saveTask(ctx context.Context, session *db.Session) (care.Status, care.FieldErrors, error) {
	input, err := parseTaskFields(u.form.fields, u.form.plantOptions, u.form.plantIndex)
	if err != nil {
		return 0, nil, &formParseError{err: err}
	}
	input.TaskID = u.form.id
	input.Version = u.form.version

	if u.form.id == 0 {
		res, err := u.tasks.Create(ctx, session, input)
		return res.Status, res.Errors, err
	}
	res, err := u.tasks.Update(ctx, session, u.form.id, input)
	return res.Status, res.Errors, err
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.closeForm(gui)
	return nil
}

func (u *UI) closeForm(gui *gocui.Gui) {
	u.form = nil
	if gui != nil {
		_ = gui.DeleteView(viewForm)
	}
	u.setCurrentView(gui, u.focus)
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		value := field.Value
		if u.isPlantPicker(index) && len(u.form.plantOptions) == 0 {
			value = "(no plants yet)"
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, value)
	}
	label := u.form.fields[u.form.index].Label + ": "
	cursorX := len([]rune(label)) + len([]rune(u.form.fields[u.form.index].Value)) + 2
	view.SetCursor(cursorX, u.form.index)
}

func (u *UI) isPlantPicker(index int) bool {
	return u.form != nil && u.form.entity == access.MaintenanceTask && index == fieldPlant
}

// cyclePlant moves the task form's plant picker by step, wrapping around.
func (u *UI) cyclePlant(step int) {
	count := len(u.form.plantOptions)
	if count == 0 {
		return
	}
	u.form.plantIndex = ((u.form.plantIndex+step)%count + count) % count
	u.form.fields[fieldPlant].Value = u.form.plantOptions[u.form.plantIndex].Name
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}

	if ui.isPlantPicker(ui.form.index) {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			ui.cyclePlant(1)
		case gocui.KeyArrowLeft:
			ui.cyclePlant(-1)
		}
		ui.renderForm(view)
		return true
	}

	field := &ui.form.fields[ui.form.index]
	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

// deleteItem is the first delete step: it loads the row and asks for
// confirmation. Nothing is removed until confirmDelete.
func (u *UI) deleteItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	entity := u.focusedEntity()
	if !u.allowed(entity, access.Delete) {
		return nil
	}

	return u.inSession(func(ctx context.Context, session *db.Session) error {
		if entity == access.Plant {
			selected := u.selectedPlantItem()
			if selected == nil {
				return nil
			}
			res, err := u.plants.Delete(ctx, session, selected.PlantID)
			if err != nil {
				return err
			}
			if !res.OK() {
				u.status = "That plant no longer exists."
				return u.refreshIn(ctx, session)
			}
			label := fmt.Sprintf("plant %q", res.Value.Name)
			if n := len(u.taskList); n > 0 {
				if u.restrict {
					u.status = fmt.Sprintf("The plant still has %d maintenance tasks. Delete them first.", n)
					return nil
				}
				label = fmt.Sprintf("%s and its %d maintenance tasks", label, n)
			}
			u.confirm = &pendingDelete{entity: access.Plant, id: res.Value.PlantID, label: label}
			return nil
		}

		selected := u.selectedTaskItem()
		if selected == nil {
			return nil
		}
		res, err := u.tasks.Delete(ctx, session, selected.TaskID)
		if err != nil {
			return err
		}
		if !res.OK() {
			u.status = "That maintenance task no longer exists."
			return u.refreshIn(ctx, session)
		}
		label := fmt.Sprintf("%s on %s", res.Value.TaskType, res.Value.Date.UTC().Format(dateLayout))
		u.confirm = &pendingDelete{entity: access.MaintenanceTask, id: res.Value.TaskID, label: label}
		return nil
	})
}

func (u *UI) confirmDelete(gui *gocui.Gui, _ *gocui.View) error {
	pending := u.confirm
	if pending == nil {
		return nil
	}
	u.closeConfirm(gui)
	if !u.allowed(pending.entity, access.ConfirmDelete) {
		return nil
	}

	var ok bool
	err := u.inSession(func(ctx context.Context, session *db.Session) error {
		if pending.entity == access.Plant {
			res, err := u.plants.ConfirmDelete(ctx, session, pending.id)
			ok = res.OK()
			return err
		}
		res, err := u.tasks.ConfirmDelete(ctx, session, pending.id)
		ok = res.OK()
		return err
	})
	switch {
	case errors.Is(err, db.ErrReferentialIntegrity):
		u.status = "The plant still has maintenance tasks. Delete them first."
		return nil
	case err != nil:
		return err
	case !ok:
		u.status = "Already deleted."
	default:
		u.status = "Deleted " + pending.label + "."
	}
	return u.load()
}

func (u *UI) cancelDelete(gui *gocui.Gui, _ *gocui.View) error {
	u.closeConfirm(gui)
	return nil
}

func (u *UI) closeConfirm(gui *gocui.Gui) {
	u.confirm = nil
	if gui != nil {
		_ = gui.DeleteView(viewConfirm)
	}
	u.setCurrentView(gui, u.focus)
}

func (u *UI) showConfirm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(50, maxX/3)
	height := 4
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewConfirm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Confirm delete"
		view.Wrap = true
		view.FrameColor = gocui.ColorRed
		view.TitleColor = gocui.ColorRed
	}
	view.Clear()
	fmt.Fprintf(view, "Delete %s?\n\ny confirm | n/esc cancel", u.confirm.label)
	_, _ = gui.SetCurrentView(viewConfirm)
	return nil
}

func (u *UI) toggleHelp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() && !u.helpActive {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	_ = gui.DeleteView(viewHelp)
	u.setCurrentView(gui, u.focus)
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := 16
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	fmt.Fprint(view, helpText())
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}

func (u *UI) setCurrentView(gui *gocui.Gui, name string) {
	if gui == nil {
		return
	}
	_, _ = gui.SetCurrentView(name)
}

func (u *UI) inputActive() bool {
	return u.form != nil || u.confirm != nil || u.helpActive
}

// quit ignores q while a form is open so it can be typed.
func (u *UI) quit(gui *gocui.Gui, view *gocui.View) error {
	if u.form != nil {
		return nil
	}
	return u.exit(gui, view)
}

func (u *UI) exit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab switch panes | 1 Plants | 2 Maintenance",
		"  j/k or arrows move selection | enter open plant's tasks",
		"  mouse click to focus/select | mouse wheel scrolls",
		"",
		"Actions (administrators):",
		"  a add | e edit | d delete (asks y/n first)",
		"  enter save (form) | tab next field | esc cancel",
		"  space/left/right pick plant (task form)",
		"",
		"Other:",
		"  r reload | ? help | esc close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func clampIndex(index, length int) int {
	if length == 0 || index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}
