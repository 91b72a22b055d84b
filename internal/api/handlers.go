package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/identity"
	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/queue"
	"github.com/fiecsoft/procflow/internal/workflow"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	token, user, err := s.deps.Identity.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !s.requireAdmin(w, actor) {
			return
		}
		users, err := s.deps.Identity.Users(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if !s.requireAdmin(w, actor) {
			return
		}
		var in struct {
			FullName string   `json:"fullName"`
			Email    string   `json:"email"`
			Password string   `json:"password"`
			Roles    []string `json:"roles"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		user, err := s.deps.Identity.CreateUser(r.Context(), in.FullName, in.Email, in.Password, in.Roles)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, user)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUserRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/users/")
	if len(parts) != 2 || parts[1] != "active" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	actor, ok := s.actorOrFail(w, r)
	if !ok || !s.requireAdmin(w, actor) {
		return
	}
	var in struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.deps.Identity.SetActive(r.Context(), parts[0], in.Active)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleProcessTypes(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		types, err := s.deps.Catalog.ActiveProcessTypes(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, types)
	case http.MethodPost:
		if !s.requireAdmin(w, actor) {
			return
		}
		var in struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		pt, err := s.deps.Catalog.CreateProcessType(r.Context(), in.Code, in.Name, in.Description, actor.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, pt)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProcessTypeRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/process-types/")
	if len(parts) != 2 || parts[1] != "active" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	actor, ok := s.actorOrFail(w, r)
	if !ok || !s.requireAdmin(w, actor) {
		return
	}
	var in struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	pt, err := s.deps.Catalog.SetProcessTypeActive(r.Context(), parts[0], in.Active)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pt)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		processTypeID := r.URL.Query().Get("process_type_id")
		if processTypeID == "" {
			s.writeError(w, &workflow.ValidationError{Entity: "process_template", Field: "process_type_id", Reason: "is required"})
			return
		}
		tpls, err := s.deps.Catalog.PublishedTemplates(r.Context(), processTypeID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, tpls)
	case http.MethodPost:
		if !s.requireAdmin(w, actor) {
			return
		}
		var in struct {
			ProcessTypeID string `json:"processTypeId"`
			Description   string `json:"description"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		tpl, err := s.deps.Catalog.CreateTemplate(r.Context(), in.ProcessTypeID, in.Description, actor.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, tpl)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTemplateRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/templates/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	id := parts[0]
	switch parts[1] {
	case "steps":
		switch r.Method {
		case http.MethodGet:
			steps, err := s.deps.Catalog.StepTemplates(r.Context(), id)
			if err != nil {
				s.writeError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, steps)
		case http.MethodPost:
			if !s.requireAdmin(w, actor) {
				return
			}
			var in struct {
				Ord          int    `json:"ord"`
				Title        string `json:"title"`
				Description  string `json:"description"`
				Required     bool   `json:"required"`
				ReviewerRole string `json:"reviewerRole"`
			}
			if err := decodeJSON(r, &in); err != nil {
				s.writeError(w, err)
				return
			}
			st, err := s.deps.Catalog.AddStep(r.Context(), id, in.Ord, in.Title, in.Description, in.Required, in.ReviewerRole)
			if err != nil {
				s.writeError(w, err)
				return
			}
			s.respondJSON(w, http.StatusCreated, st)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "publish":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.requireAdmin(w, actor) {
			return
		}
		tpl, err := s.deps.Catalog.PublishTemplate(r.Context(), id, actor.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, tpl)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter, err := filterFromQuery(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		instances, err := s.deps.Engine.ListInstances(r.Context(), filter)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, instances)
	case http.MethodPost:
		var in struct {
			TemplateID        string            `json:"templateId"`
			Year              int               `json:"year"`
			Month             int               `json:"month"`
			ResponsibleUserID string            `json:"responsibleUserId"`
			Title             string            `json:"title"`
			Comment           string            `json:"comment"`
			DueAt             *time.Time        `json:"dueAt"`
			Tags              []string          `json:"tags"`
			Metadata          map[string]string `json:"metadata"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		inst, err := s.deps.Engine.Instantiate(r.Context(), workflow.InstantiateInput{
			TemplateID:        in.TemplateID,
			Year:              in.Year,
			Month:             in.Month,
			ResponsibleUserID: in.ResponsibleUserID,
			CreatedBy:         actor.ID,
			Title:             in.Title,
			Comment:           in.Comment,
			DueAt:             in.DueAt,
			Tags:              in.Tags,
			Metadata:          in.Metadata,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, inst)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleInstanceRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/instances/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		inst, err := s.deps.Engine.InstanceByID(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, inst)
	case len(parts) == 2 && parts[1] == "progress":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		progress, err := s.deps.Engine.ComputeProgress(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, progress)
	case len(parts) == 2 && parts[1] == "steps":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		steps, err := s.deps.Engine.StepsByInstance(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, steps)
	case len(parts) == 2:
		s.handleInstanceAction(w, r, actor, id, parts[1])
	case len(parts) == 4 && parts[1] == "steps":
		s.handleStepRoute(w, r, actor, id, parts[2], parts[3])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleInstanceAction(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id, action string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Comment string `json:"comment"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
	}
	var (
		inst *model.ProcessInstance
		err  error
	)
	switch action {
	case "submit":
		inst, err = s.deps.Engine.SubmitForApproval(r.Context(), actor, id)
	case "approve":
		inst, err = s.deps.Engine.ApproveProcess(r.Context(), actor, id, in.Comment)
	case "reject":
		inst, err = s.deps.Engine.RejectProcess(r.Context(), actor, id, in.Comment)
	case "close":
		inst, err = s.deps.Engine.Close(r.Context(), actor, id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, inst)
}

func (s *Server) handleStepRoute(w http.ResponseWriter, r *http.Request, actor workflow.Actor, instanceID, stepID, leaf string) {
	switch leaf {
	case "transition":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var in struct {
			Action  string `json:"action"`
			Comment string `json:"comment"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		step, err := s.deps.Engine.TransitionStep(r.Context(), actor, instanceID, stepID, model.StepAction(strings.ToLower(in.Action)), in.Comment)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, step)
	case "comments":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var in struct {
			Comment string `json:"comment"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		step, err := s.deps.Engine.CommentStep(r.Context(), actor, instanceID, stepID, in.Comment)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, step)
	case "artifacts":
		switch r.Method {
		case http.MethodGet:
			s.handleArtifactHistory(w, r, instanceID, stepID)
		case http.MethodPost:
			s.handleArtifactUpload(w, r, actor, instanceID, stepID)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleArtifactHistory(w http.ResponseWriter, r *http.Request, instanceID, stepID string) {
	if _, err := s.deps.Engine.InstanceByID(r.Context(), instanceID); err != nil {
		s.writeError(w, err)
		return
	}
	versions, err := s.deps.Ledger.Versions(r.Context(), stepID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, versions)
}

func (s *Server) handleArtifactUpload(w http.ResponseWriter, r *http.Request, actor workflow.Actor, instanceID, stepID string) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, &workflow.ValidationError{Entity: "file_version", Field: "body", Reason: "must be multipart form data"})
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.writeError(w, &workflow.ValidationError{Entity: "file_version", Field: "file", Reason: "is missing"})
		return
	}
	defer part.Close()
	tmp, err := s.persistTemp(part)
	if err != nil {
		s.writeError(w, &workflow.ValidationError{Entity: "file_version", Field: "file", Reason: err.Error()})
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	if !s.typeAllowed(tmp.contentType) {
		s.writeError(w, &workflow.ValidationError{Entity: "file_version", Field: "contentType", Reason: fmt.Sprintf("%s is not allowed", tmp.contentType)})
		return
	}
	fv, err := s.deps.Ledger.RecordUpload(ctx, actor, instanceID, stepID, tmp.filename, tmp.size, tmp.contentType, tmp.f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tmp.contentType == "application/pdf" && s.deps.Queue != nil {
		payload := queue.ExtractPayload{FileID: fv.ID, ObjectKey: fv.ObjectKey, Filename: fv.Filename}
		if err := queue.EnqueueExtract(ctx, s.deps.Queue, payload); err != nil {
			// Extraction is best-effort; the upload already succeeded.
			s.log.Warn("enqueue extract", zap.String("file_id", fv.ID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusCreated, fv)
}

func (s *Server) handleArtifactRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/artifacts/")
	if len(parts) != 2 || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if _, ok := s.actorOrFail(w, r); !ok {
		return
	}
	fileID := parts[0]
	switch parts[1] {
	case "url":
		fv, err := s.deps.Ledger.FileByID(r.Context(), fileID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		expires := time.Now().Add(s.cfg.SignedURLTTL).Unix()
		sig := s.deps.Signer.Sign(fv.ID, fv.Version, expires)
		url := fmt.Sprintf("/artifacts/%s/download?version=%d&expires=%d&signature=%s", fv.ID, fv.Version, expires, sig)
		s.respondJSON(w, http.StatusOK, map[string]string{"url": url})
	case "download":
		q := r.URL.Query()
		if !s.deps.Signer.Validate(fileID, q.Get("version"), q.Get("expires"), q.Get("signature")) {
			s.writeError(w, identity.ErrInvalidToken)
			return
		}
		if exp, err := strconv.ParseInt(q.Get("expires"), 10, 64); err != nil || time.Now().Unix() > exp {
			s.writeError(w, identity.ErrInvalidToken)
			return
		}
		url, err := s.deps.Ledger.DownloadURL(r.Context(), fileID, s.cfg.SignedURLTTL)
		if err != nil {
			s.writeError(w, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		ops, err := s.deps.Store.ListArchiveOperations(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, ops)
	case http.MethodPost:
		if !s.requireAdmin(w, actor) {
			return
		}
		var in struct {
			DateFrom string `json:"dateFrom"`
			DateTo   string `json:"dateTo"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		from, err := parseDate(in.DateFrom)
		if err != nil {
			s.writeError(w, &workflow.ValidationError{Entity: "archive_operation", Field: "dateFrom", Reason: "must be a date"})
			return
		}
		to, err := parseDate(in.DateTo)
		if err != nil {
			s.writeError(w, &workflow.ValidationError{Entity: "archive_operation", Field: "dateTo", Reason: "must be a date"})
			return
		}
		if to.Before(from) {
			s.writeError(w, &workflow.ValidationError{Entity: "archive_operation", Field: "dateTo", Reason: "must not precede dateFrom"})
			return
		}
		if s.deps.Queue == nil {
			http.Error(w, "job queue unavailable", http.StatusServiceUnavailable)
			return
		}
		op := &model.ArchiveOperation{
			ID:        uuid.NewString(),
			UserID:    actor.ID,
			DateFrom:  from,
			DateTo:    to.Add(24*time.Hour - time.Nanosecond),
			Status:    model.ArchiveInProgress,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.deps.Store.CreateArchiveOperation(r.Context(), op); err != nil {
			s.writeError(w, err)
			return
		}
		if err := queue.EnqueueArchive(r.Context(), s.deps.Queue, queue.ArchivePayload{OperationID: op.ID, ActorID: actor.ID}); err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, op)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleArchiveRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/archive/")
	if len(parts) != 1 || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if _, ok := s.actorOrFail(w, r); !ok {
		return
	}
	op, err := s.deps.Store.ArchiveOperationByID(r.Context(), parts[0])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, op)
}

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !s.requireAdmin(w, actor) {
			return
		}
		logs, err := s.deps.Store.ListExportLogs(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, logs)
	case http.MethodPost:
		if !s.requireAdmin(w, actor) {
			return
		}
		var in struct {
			ProcessTypeID string `json:"processTypeId"`
			Year          int    `json:"year"`
			Month         int    `json:"month"`
		}
		if r.ContentLength > 0 {
			if err := decodeJSON(r, &in); err != nil {
				s.writeError(w, err)
				return
			}
		}
		if s.deps.Queue == nil {
			http.Error(w, "job queue unavailable", http.StatusServiceUnavailable)
			return
		}
		payload := queue.ExportPayload{
			ActorID:       actor.ID,
			ProcessTypeID: in.ProcessTypeID,
			Year:          in.Year,
			Month:         in.Month,
			RequestedAt:   time.Now().UTC(),
		}
		if err := queue.EnqueueExport(r.Context(), s.deps.Queue, payload); err != nil {
			s.writeError(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExportRoute(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/exports/")
	if len(parts) != 1 || parts[0] != "url" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	actor, ok := s.actorOrFail(w, r)
	if !ok || !s.requireAdmin(w, actor) {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, &workflow.ValidationError{Entity: "export", Field: "key", Reason: "is required"})
		return
	}
	url, err := s.deps.Exports.PresignExportURL(r.Context(), key, s.cfg.SignedURLTTL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireAdmin(w, actor) {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.deps.Store.ListAudit(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actorOrFail(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	notifications, err := s.deps.Store.NotificationsByUser(r.Context(), actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, notifications)
}

// --- multipart upload plumbing ---

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

// persistTemp spools the part to disk so the size is known before any byte
// reaches object storage, sniffing the content type from the first 512 bytes.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "procflow-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				tmpFile.Close()
				os.Remove(tmpFile.Name())
				return nil, fmt.Errorf("exceeds limit (%d bytes)", s.cfg.MaxFileSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				tmpFile.Close()
				os.Remove(tmpFile.Name())
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			tmpFile.Close()
			os.Remove(tmpFile.Name())
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if written == 0 {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, errors.New("is empty")
	}
	contentType := http.DetectContentType(sniff)
	if _, err := tmpFile.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.bin"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: contentType,
		filename:    filepath.Base(filename),
	}, nil
}

func (s *Server) typeAllowed(contentType string) bool {
	for _, t := range s.cfg.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func pathParts(path, prefix string) []string {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func filterFromQuery(r *http.Request) (model.ProcessFilter, error) {
	q := r.URL.Query()
	f := model.ProcessFilter{
		ProcessTypeID:     q.Get("process_type_id"),
		ResponsibleUserID: q.Get("responsible_user_id"),
		State:             model.ProcessState(strings.ToUpper(q.Get("state"))),
	}
	if f.State != "" && !f.State.IsValid() {
		return f, &workflow.ValidationError{Entity: "process_instance", Field: "state", Reason: "is unknown"}
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return f, &workflow.ValidationError{Entity: "process_instance", Field: "year", Reason: "must be a number"}
		}
		f.Year = year
	}
	if raw := q.Get("month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			return f, &workflow.ValidationError{Entity: "process_instance", Field: "month", Reason: "must be a number"}
		}
		f.Month = month
	}
	if raw := q.Get("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			return f, &workflow.ValidationError{Entity: "process_instance", Field: "archived", Reason: "must be a boolean"}
		}
		f.Archived = &archived
	}
	return f, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
