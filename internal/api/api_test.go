package api

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
)

func TestCreateFlowRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateFlowRequest
		wantErr bool
	}{
		{
			name: "valid composite",
			req:  CreateFlowRequest{FlowType: "analytics-composite", Prompt: "launch week"},
		},
		{
			name: "valid single stage",
			req:  CreateFlowRequest{FlowType: "content", Prompt: "write a tutorial"},
		},
		{
			name:    "empty prompt",
			req:     CreateFlowRequest{FlowType: "strategy", Prompt: ""},
			wantErr: true,
		},
		{
			name:    "whitespace prompt",
			req:     CreateFlowRequest{FlowType: "strategy", Prompt: "   "},
			wantErr: true,
		},
		{
			name:    "prompt too long",
			req:     CreateFlowRequest{FlowType: "strategy", Prompt: strings.Repeat("a", maxPromptLength+1)},
			wantErr: true,
		},
		{
			name:    "unknown flow type",
			req:     CreateFlowRequest{FlowType: "marketing", Prompt: "plan"},
			wantErr: true,
		},
		{
			name:    "empty flow type",
			req:     CreateFlowRequest{Prompt: "plan"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// Невалидный запрос отклоняется до обращения к хранилищу:
// handler с nil-репозиторием не должен паниковать.
func TestCreateFlow_RejectsBeforePersistence(t *testing.T) {
	h := NewHandler(Config{Logger: slog.Default()})

	tests := []struct {
		name       string
		projectID  string
		body       string
		wantStatus int
	}{
		{
			name:       "invalid project id",
			projectID:  "not-a-uuid",
			body:       `{"flow_type":"strategy","prompt":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			projectID:  uuid.NewString(),
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing prompt",
			projectID:  uuid.NewString(),
			body:       `{"flow_type":"strategy"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown flow type",
			projectID:  uuid.NewString(),
			body:       `{"flow_type":"bogus","prompt":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+tt.projectID+"/flows", strings.NewReader(tt.body))
			r.SetPathValue("project_id", tt.projectID)
			w := httptest.NewRecorder()

			h.CreateFlow(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetFlow_InvalidID(t *testing.T) {
	h := NewHandler(Config{Logger: slog.Default()})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/flows/abc", nil)
	r.SetPathValue("id", "abc")
	w := httptest.NewRecorder()

	h.GetFlow(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestFlowFromDomain(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	completed := time.Now()
	execTime := 60.0

	flow := domain.Flow{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		FlowType:      domain.FlowTypeComposite,
		Prompt:        "p",
		Status:        domain.FlowStatusCompleted,
		Priority:      3,
		StartedAt:     &started,
		CompletedAt:   &completed,
		Result:        "done",
		ExecutionTime: &execTime,
	}

	resp := FlowFromDomain(flow)
	if resp.ID != flow.ID || resp.ProjectID != flow.ProjectID {
		t.Error("ids should be carried over")
	}
	if resp.FlowType != "analytics-composite" || resp.Status != "completed" {
		t.Errorf("unexpected enum mapping: %s %s", resp.FlowType, resp.Status)
	}
	if resp.Result != "done" || resp.ExecutionTime == nil || *resp.ExecutionTime != 60.0 {
		t.Error("result fields should be carried over")
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		name  string
		def   int
		want  int
	}{
		{"limit=10", "limit", 50, 10},
		{"", "limit", 50, 50},
		{"limit=abc", "limit", 50, 50},
		{"limit=-5", "limit", 50, 50},
		{"offset=0", "offset", 0, 0},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		if got := parseIntParam(r, tt.name, tt.def); got != tt.want {
			t.Errorf("parseIntParam(%q, %s) = %d, want %d", tt.query, tt.name, got, tt.want)
		}
	}
}
