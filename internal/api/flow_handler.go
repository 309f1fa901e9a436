package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/repo"
)

// CreateFlow запускает новый flow для проекта.
// POST /api/v1/projects/{project_id}/flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("project_id"))
	if err != nil {
		BadRequest(w, "invalid project id")
		return
	}

	var req CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация до персистентности: невалидный запрос не оставляет следов.
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	flow := &domain.Flow{
		ID:         uuid.New(),
		ProjectID:  projectID,
		FlowType:   domain.FlowType(req.FlowType),
		Prompt:     req.Prompt,
		Status:     domain.FlowStatusPending,
		Parameters: req.Parameters,
		Priority:   req.Priority,
		CreatedAt:  time.Now(),
	}

	if err := h.flowRepo.Create(r.Context(), flow); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Публикуем событие в очередь
	if h.publisher != nil {
		if err := h.publisher.PublishFlowSubmitted(r.Context(), flow.ID, flow.ProjectID); err != nil {
			// Flow уже в БД — воркер подхватит его через polling.
			h.logger.Warn("failed to publish flow.submitted", "flow_id", flow.ID, "error", err)
		}
	}

	h.logger.Info("flow created",
		"flow_id", flow.ID,
		"project_id", flow.ProjectID,
		"flow_type", flow.FlowType,
	)

	Created(w, FlowFromDomain(*flow))
}

// GetFlow возвращает flow по ID.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.flowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	Success(w, FlowFromDomain(*flow))
}

// CancelFlow отменяет flow.
// POST /api/v1/flows/{id}/cancel
//
// Отмена кооперативная: здесь меняется только статус в БД, выполняющий
// воркер заметит его между стадиями и остановится.
func (h *Handler) CancelFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.flowRepo.Cancel(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	if h.bus != nil {
		event := domain.NewStatusEvent(flow.ID, flow.Status, flow.Error)
		if err := h.bus.Publish(r.Context(), domain.FlowChannel(flow.ID), event); err != nil {
			h.logger.Warn("failed to publish cancel event", "flow_id", flow.ID, "error", err)
		}
	}

	h.logger.Info("flow cancelled", "flow_id", flow.ID)

	Success(w, FlowFromDomain(*flow))
}

// ListFlows возвращает список flows с фильтрацией.
// GET /api/v1/flows?project_id=...&status=...&limit=...&offset=...
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	filter := repo.FlowFilter{}

	// Парсим query параметры
	if projectIDStr := r.URL.Query().Get("project_id"); projectIDStr != "" {
		projectID, err := uuid.Parse(projectIDStr)
		if err != nil {
			BadRequest(w, "invalid project_id")
			return
		}
		filter.ProjectID = &projectID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if !domain.FlowStatus(status).IsValid() {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = domain.FlowStatus(status)
	}

	filter.Limit = parseIntParam(r, "limit", 50)
	filter.Offset = parseIntParam(r, "offset", 0)

	flows, err := h.flowRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowResponse, len(flows))
	for i, flow := range flows {
		result[i] = FlowFromDomain(flow)
	}

	List(w, result, len(result))
}

// parseIntParam парсит числовой query-параметр с дефолтным значением.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
