package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/notflix/aiservice/internal/manager"
)

const operationHealth = "health"

type (
	HealthResponseDTO struct {
		Status string `json:"status" example:"ai_service_active"`
		GPU    bool   `json:"gpu"`
	}

	HealthOutput struct {
		Body HealthResponseDTO
	}

	ModelsResponseDTO struct {
		Models []manager.Resident `json:"models"`
	}

	ModelsOutput struct {
		Body ModelsResponseDTO
	}
)

// HealthHandler reports liveness and what is loaded.
type HealthHandler struct {
	gpu    bool
	models ResidentLister
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, gpu bool, models ResidentLister) *HealthHandler {
	h := &HealthHandler{gpu: gpu, models: models}

	huma.Register(api, huma.Operation{
		OperationID: operationHealth,
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness and accelerator availability",
		Tags:        []string{"health"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List resident models",
		Tags:        []string{"health"},
	}, h.handleModels)

	return h
}

func (h *HealthHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	return &HealthOutput{Body: HealthResponseDTO{Status: "ai_service_active", GPU: h.gpu}}, nil
}

func (h *HealthHandler) handleModels(ctx context.Context, _ *struct{}) (*ModelsOutput, error) {
	models := []manager.Resident{}
	if h.models != nil {
		models = append(models, h.models.Resident()...)
	}
	return &ModelsOutput{Body: ModelsResponseDTO{Models: models}}, nil
}
