package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/service"
)

// Handler serves the JSON API on top of the services.
type Handler struct {
	templates   *service.TemplateService
	assignments *service.AssignmentService
	progress    *service.ProgressService
	tasks       *service.TaskService
	renewals    *service.RenewalService
	log         logger.Logger
}

func NewHandler(
	templates *service.TemplateService,
	assignments *service.AssignmentService,
	progress *service.ProgressService,
	tasks *service.TaskService,
	renewals *service.RenewalService,
	log logger.Logger,
) *Handler {
	return &Handler{
		templates:   templates,
		assignments: assignments,
		progress:    progress,
		tasks:       tasks,
		renewals:    renewals,
		log:         log,
	}
}

func (h *Handler) CreateTemplate(c *fiber.Ctx) error {
	var input service.TemplateInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	tmpl, err := h.templates.Create(c.UserContext(), currentUser(c), input)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tmpl)
}

// ListTemplates returns active templates; admins may pass ?all=true.
func (h *Handler) ListTemplates(c *fiber.Ctx) error {
	all := c.Query("all") == "true"
	if all && !currentUser(c).IsAdmin() {
		return respondError(c, h.log, service.ErrForbidden)
	}
	templates, err := h.templates.List(c.UserContext(), all)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(templates)
}

func (h *Handler) GetTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	tmpl, err := h.templates.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(tmpl)
}

func (h *Handler) UpdateTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var input service.TemplateInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	tmpl, err := h.templates.Update(c.UserContext(), currentUser(c), id, input)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(tmpl)
}

func (h *Handler) DeleteTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.templates.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AssignTemplate takes the template id from the path; the body carries the
// children, the optional period and the auto renew flag.
func (h *Handler) AssignTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var input service.AssignInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	input.TemplateID = id
	res, err := h.assignments.Assign(c.UserContext(), currentUser(c), input)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *Handler) ListTemplateTasks(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	tasks, err := h.tasks.ListForTemplate(c.UserContext(), currentUser(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(tasks)
}

func (h *Handler) ListMyTasks(c *fiber.Ctx) error {
	return h.listChildTasks(c, currentUser(c).ID)
}

func (h *Handler) ListUserTasks(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	return h.listChildTasks(c, id)
}

func (h *Handler) listChildTasks(c *fiber.Ctx, childID uint) error {
	var query service.TaskQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query")
	}
	tasks, err := h.tasks.ListForChild(c.UserContext(), currentUser(c), childID, query)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(tasks)
}

func (h *Handler) GetTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	task, err := h.tasks.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(task)
}

func (h *Handler) SetMetrics(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var current model.Metrics
	if err := c.BodyParser(&current); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	res, err := h.progress.SetMetrics(c.UserContext(), currentUser(c), id, current)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

func (h *Handler) IncrementMetric(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var input service.IncrementInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	res, err := h.progress.IncrementMetric(c.UserContext(), currentUser(c), id, input)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

type statusRequest struct {
	Status model.TaskStatus `json:"status"`
}

func (h *Handler) SetTaskStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "cannot parse JSON")
	}
	task, err := h.tasks.SetStatus(c.UserContext(), currentUser(c), id, req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(task)
}

func (h *Handler) DeleteTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.tasks.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunRenewal is the manual renewal trigger.
func (h *Handler) RunRenewal(c *fiber.Ctx) error {
	if !currentUser(c).IsAdmin() {
		return respondError(c, h.log, service.ErrForbidden)
	}
	res := h.renewals.Trigger(c.UserContext())
	if res.Success {
		return c.JSON(res)
	}
	status := fiber.StatusInternalServerError
	if errors.Is(res.Err, service.ErrRenewalInProgress) {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(res)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}
