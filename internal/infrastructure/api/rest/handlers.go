package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/loader"
)

// WorkflowResponse is the JSON shape returned for a registered definition.
type WorkflowResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Version          string `json:"version,omitempty"`
	EntryPointNodeID string `json:"entryPointNodeId,omitempty"`
	NodeCount        int    `json:"nodeCount"`
	ConnectionCount  int    `json:"connectionCount"`
}

func workflowToResponse(def domain.WorkflowDefinition) WorkflowResponse {
	return WorkflowResponse{
		ID: def.ID, Name: def.Name, Version: def.Version,
		EntryPointNodeID: def.EntryPointNodeID,
		NodeCount:        len(def.Nodes), ConnectionCount: len(def.Connections),
	}
}

// handleListWorkflows handles GET /api/v1/workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.ListDefinitions()
	out := make([]WorkflowResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, workflowToResponse(def))
	}
	s.respondJSON(w, out, http.StatusOK)
}

// handleCreateWorkflow handles POST /api/v1/workflows. The body is a
// Document (§6 external format) in JSON.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var doc loader.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	def := doc.ToDefinition()
	if err := s.registry.PutDefinition(def); err != nil {
		s.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.respondJSON(w, workflowToResponse(def), http.StatusCreated)
}

// handleGetWorkflow handles GET /api/v1/workflows/{id}
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def, ok := s.registry.GetDefinition(id)
	if !ok {
		s.respondError(w, "workflow not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, workflowToResponse(def), http.StatusOK)
}

// StartExecutionRequest is the body of POST /api/v1/executions.
type StartExecutionRequest struct {
	WorkflowID string `json:"workflowId"`
}

// ExecutionResponse is the JSON shape of a running or terminal instance.
type ExecutionResponse struct {
	InstanceID   string `json:"instanceId"`
	DefinitionID string `json:"definitionId"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

func executionToResponse(ctx *domain.WorkflowExecutionContext) ExecutionResponse {
	return ExecutionResponse{
		InstanceID:   ctx.InstanceID,
		DefinitionID: ctx.DefinitionID,
		Status:       string(ctx.Status()),
		Reason:       ctx.Reason(),
	}
}

// handleStartExecution handles POST /api/v1/executions
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" {
		s.respondError(w, "workflowId is required", http.StatusBadRequest)
		return
	}

	wctx, err := s.registry.Start(req.WorkflowID)
	if err != nil {
		s.respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	s.respondJSON(w, executionToResponse(wctx), http.StatusAccepted)
}

// handleListExecutions handles GET /api/v1/executions
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	instances := s.registry.ListInstances()
	out := make([]ExecutionResponse, 0, len(instances))
	for _, ctx := range instances {
		out = append(out, executionToResponse(ctx))
	}
	s.respondJSON(w, out, http.StatusOK)
}

// handleGetExecution handles GET /api/v1/executions/{id}
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rw, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "execution not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, executionToResponse(rw.ctx), http.StatusOK)
}

// handleCancelExecution handles POST /api/v1/executions/{id}/cancel
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	rw, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "execution not found", http.StatusNotFound)
		return
	}
	rw.engine.Cancel(domain.CancelReasonUser)
	s.respondJSON(w, map[string]string{"status": "cancelling"}, http.StatusAccepted)
}

// handleExecutionEvents handles GET /api/v1/executions/{id}/events. It
// opens a new subscription on the instance's event topic and returns what
// that subscription already holds, without blocking for new ones. The
// topic keeps no history, so events published before the request are not
// included; streaming delivery is the websocket observer's job.
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	rw, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "execution not found", http.StatusNotFound)
		return
	}

	ch, unsubscribe := rw.engine.Events().Subscribe(64)
	defer unsubscribe()

	events := make([]any, 0)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				s.respondJSON(w, events, http.StatusOK)
				return
			}
			events = append(events, ev)
		default:
			s.respondJSON(w, events, http.StatusOK)
			return
		}
	}
}

// handleDeadLetters handles GET /api/v1/executions/{id}/dead-letters
func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	rw, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "execution not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, rw.engine.DeadLetters().ListForInstance(rw.ctx.InstanceID), http.StatusOK)
}

// handleSaveCheckpoint handles POST /api/v1/checkpoints/{id}
func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rw, ok := s.registry.Get(r.URL.Query().Get("instanceId"))
	if !ok {
		s.respondError(w, "execution not found", http.StatusNotFound)
		return
	}

	wctx := rw.ctx
	state := domain.CheckpointState{
		CheckpointID:  id,
		WorkflowID:    wctx.DefinitionID,
		InstanceID:    wctx.InstanceID,
		SavedAt:       time.Now(),
		Status:        wctx.Status(),
		Variables:     wctx.Variables.Snapshot(),
		NodeInstances: rw.engine.Instances(),
		PendingInbox:  rw.engine.DrainInboxes(),
	}
	if err := s.store.Save(s.requestContext(r), id, state); err != nil {
		s.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, map[string]string{"status": "saved"}, http.StatusCreated)
}

// handleResumeCheckpoint handles POST /api/v1/checkpoints/{id}/resume. It
// loads the saved CheckpointState and starts a new engine against the
// checkpoint's WorkflowID definition, resuming from where the workflow was
// when the checkpoint was taken.
func (s *Server) handleResumeCheckpoint(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.Load(s.requestContext(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	wctx, err := s.registry.Resume(*state)
	if err != nil {
		s.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.respondJSON(w, executionToResponse(wctx), http.StatusAccepted)
}

// handleLoadCheckpoint handles GET /api/v1/checkpoints/{id}
func (s *Server) handleLoadCheckpoint(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.Load(s.requestContext(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	s.respondJSON(w, state, http.StatusOK)
}

// handleListCheckpoints handles GET /api/v1/checkpoints?instanceId=...
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	instanceID := r.URL.Query().Get("instanceId")
	if instanceID == "" {
		s.respondError(w, "instanceId query parameter is required", http.StatusBadRequest)
		return
	}
	metas, err := s.store.List(s.requestContext(r), instanceID)
	if err != nil {
		s.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, metas, http.StatusOK)
}

// handleDeleteCheckpoint handles DELETE /api/v1/checkpoints/{id}
func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(s.requestContext(r), r.PathValue("id")); err != nil {
		s.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}
