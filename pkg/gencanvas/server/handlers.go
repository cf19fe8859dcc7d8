package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/assets"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/localmodels"
)

// maxUploadBytes bounds one media upload.
const maxUploadBytes = 128 << 20 // 128 MiB

type createNodeRequest struct {
	Type      gencanvas.NodeType          `json:"type"`
	Prompt    string                      `json:"prompt"`
	ParentIDs []string                    `json:"parentIds"`
	Params    *gencanvas.GenerationParams `json:"params"`
}

type updateNodeRequest struct {
	Prompt *string                     `json:"prompt"`
	Params *gencanvas.GenerationParams `json:"params"`
}

type edgeRequest struct {
	ParentID string `json:"parentId"`
}

// createNodeResponse is the created node plus any requested parent edges
// that were rejected (unknown id, self reference, cycle), so the client
// learns about dropped edges instead of discovering a silently different
// graph later.
type createNodeResponse struct {
	gencanvas.Node
	RejectedParents []rejectedEdge `json:"rejectedParents,omitempty"`
}

type rejectedEdge struct {
	ParentID string `json:"parentId"`
	Reason   string `json:"reason"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Nodes())
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var body createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !body.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unknown node type: "+string(body.Type))
		return
	}

	n := gencanvas.NewNode(body.Type)
	n.Prompt = body.Prompt
	if body.Params != nil {
		n.Params = *body.Params
	}
	s.store.AddNode(n)

	// Edges are added through Connect so cycle and existence checks apply.
	var rejected []rejectedEdge
	for _, pid := range body.ParentIDs {
		if err := s.store.Connect(n.ID, pid); err != nil {
			s.logger.Warn("edge rejected at creation", "node_id", n.ID, "parent_id", pid, "error", err)
			rejected = append(rejected, rejectedEdge{ParentID: pid, Reason: err.Error()})
		}
	}

	node, _ := s.store.Node(n.ID)
	writeJSON(w, http.StatusCreated, createNodeResponse{Node: node, RejectedParents: rejected})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.store.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body updateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := gencanvas.NodeUpdate{Prompt: body.Prompt, Params: body.Params}
	if !s.store.UpdateNode(id, upd) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	node, _ := s.store.Node(id)
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.RemoveNode(id) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body edgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.store.Connect(id, body.ParentID)
	switch {
	case err == nil:
		node, _ := s.store.Node(id)
		writeJSON(w, http.StatusOK, node)
	case errors.Is(err, gencanvas.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		// Self-references and cycles are caller mistakes, not server state.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body edgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.store.Disconnect(id, body.ParentID)
	node, ok := s.store.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleGenerate dispatches a generation and returns 202 immediately.
// Progress and outcome flow through the node's status: LOADING while in
// flight, then SUCCESS or ERROR, observable via the node endpoints and
// the SSE feed. Synchronous providers can take minutes, so the request
// never waits for them.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.store.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if node.Status == gencanvas.StatusLoading {
		writeError(w, http.StatusConflict, gencanvas.ErrAlreadyGenerating.Error())
		return
	}

	// Detached from the request context: the generation keeps running
	// after the 202 is written.
	go func() {
		if err := s.dispatcher.Generate(context.Background(), id); err != nil {
			// Terminal states are already on the node; this is for operators.
			s.logger.Warn("generation dispatch failed", "node_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"nodeId": id, "status": "accepted"})
}

// handleGenerationStatus is the status-check endpoint: it reports the
// job verdict for a node, letting a separate recovery monitor (or a
// refreshed client) poll this process for async completions.
func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.store.Node(id); !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if s.checker == nil {
		writeError(w, http.StatusServiceUnavailable, "no status checker configured")
		return
	}

	res, err := s.checker.Check(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpload stores raw media bytes and returns the public URL.
// The body is the file content; Content-Type names the media type.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	url, err := s.uploads.Store(data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}
	entries, err := s.library.List(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []assets.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSaveLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}
	var entry assets.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if entry.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "sourceUrl is required")
		return
	}

	saved, err := s.library.Save(entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}
	err := s.library.Delete(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, assets.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleLocalModels(w http.ResponseWriter, _ *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "local models not configured")
		return
	}
	models, err := s.scanner.Models()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if models == nil {
		models = []localmodels.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}
