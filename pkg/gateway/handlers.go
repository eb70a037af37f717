package gateway

import (
	"net/http"

	"github.com/harun/loom/pkg/jobs"
	"github.com/harun/loom/pkg/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := s.workspace.ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeBody(r, createProjectSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.workspace.CreateProject(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.workspace.GetProject(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.DeleteProject(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.workspace.Tree(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path query parameter is required"})
		return
	}

	content, err := s.workspace.ReadFile(r.PathValue("id"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{Path: path, Content: content})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path query parameter is required"})
		return
	}

	var req writeFileRequest
	if err := decodeBody(r, writeFileSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.workspace.WriteFile(r.PathValue("id"), path, req.Content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.workspace.ListThreads(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if threads == nil {
		threads = []store.Thread{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := decodeBody(r, createThreadSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := s.workspace.CreateThread(r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if _, err := s.resolveThreadInProject(r); err != nil {
		writeError(w, err)
		return
	}
	if err := s.workspace.DeleteThread(r.PathValue("tid")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := s.resolveThreadInProject(r); err != nil {
		writeError(w, err)
		return
	}

	messages, err := s.workspace.Messages(r.PathValue("tid"))
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleSubmitMessage accepts a message for asynchronous processing and
// returns a job id to poll. The tool runs in the project's directory.
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	workingDir, err := s.resolveThreadInProject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req postMessageRequest
	if err := decodeBody(r, postMessageSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	jobID, err := s.jobs.Submit(jobs.SubmitRequest{
		ThreadID:   r.PathValue("tid"),
		WorkingDir: workingDir,
		Message:    req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitAccepted{JobID: jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJobStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Stats())
}

// resolveThreadInProject checks the path's thread belongs to the path's
// project and returns the project's working directory.
func (s *Server) resolveThreadInProject(r *http.Request) (string, error) {
	t, p, err := s.workspace.ResolveThread(r.PathValue("tid"))
	if err != nil {
		return "", err
	}
	if t.ProjectID != r.PathValue("id") {
		return "", store.ErrThreadNotFound
	}
	return p.Dir, nil
}
