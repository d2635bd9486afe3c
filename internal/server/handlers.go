package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
	"github.com/joseph-ayodele/labelscan/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createSessionRequest struct {
	Mode string `json:"mode" validate:"omitempty,max=64"`
}

type captureRequest struct {
	DataURL  string `json:"data_url" validate:"required,startswith=data:"`
	Filename string `json:"filename" validate:"omitempty,max=255"`
}

type editTextRequest struct {
	Text *string `json:"text" validate:"omitnil,max=20000"`
}

type changeModeRequest struct {
	Mode string `json:"mode" validate:"required,notblank,max=64"`
}

type reportErrorRequest struct {
	Message string `json:"message" validate:"required,notblank,max=500"`
}

type SessionHandler struct {
	pipeline  Pipeline
	maxUpload int64
	logger    *zap.Logger
}

func NewSessionHandler(p Pipeline, maxUpload int64, logger *zap.Logger) *SessionHandler {
	if maxUpload <= 0 {
		maxUpload = 15 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{pipeline: p, maxUpload: maxUpload, logger: logger}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.pipeline.CreateSession(r.Context(), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.pipeline.Snapshot(r.Context(), chi.URLParam(r, "id")))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Capture accepts a multipart upload (field "image") or a JSON camera frame
// ({"data_url": "data:image/jpeg;base64,..."}).
func (h *SessionHandler) Capture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		img entity.Image
		err error
	)
	if mediaType == "multipart/form-data" {
		img, err = h.readUpload(w, r)
	} else {
		img, err = h.readDataURL(w, r)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.pipeline.Capture(r.Context(), id, img)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Debug("http.capture.ok",
		zap.String("session_id", id),
		zap.String("source", img.Source),
		zap.Int("bytes", img.Size))
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) readUpload(w http.ResponseWriter, r *http.Request) (entity.Image, error) {
	// room for the multipart envelope around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return entity.Image{}, tooLargeOr(err, "invalid multipart form")
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return entity.Image{}, common.NewAppError(common.CodeInvalidInput, "form field \"image\" is required", common.ErrInvalidInput)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return entity.Image{}, common.NewAppError(common.CodeInvalidInput, "read upload", err)
	}
	return entity.NewImage(data, header.Header.Get("Content-Type"), header.Filename, constants.SourceUpload), nil
}

func (h *SessionHandler) readDataURL(w http.ResponseWriter, r *http.Request) (entity.Image, error) {
	// base64 inflates the payload by a third
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload/3*4+(64<<10))
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		return entity.Image{}, err
	}
	data, mimeType, err := decodeDataURL(req.DataURL)
	if err != nil {
		return entity.Image{}, err
	}
	return entity.NewImage(data, mimeType, req.Filename, constants.SourceCamera), nil
}

// decodeDataURL splits "data:<mime>;base64,<payload>".
func decodeDataURL(s string) ([]byte, string, error) {
	invalid := func(msg string) error {
		return common.NewAppError(common.CodeInvalidInput, msg, common.ErrInvalidInput)
	}
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", invalid("data_url must start with data:")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", invalid("data_url has no payload")
	}
	mimeType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return nil, "", invalid("data_url must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", invalid("data_url payload is not valid base64")
	}
	return data, mimeType, nil
}

func (h *SessionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusAccepted)(h.pipeline.StartExtraction(r.Context(), chi.URLParam(r, "id")))
}

func (h *SessionHandler) EditText(w http.ResponseWriter, r *http.Request) {
	var req editTextRequest
	r.Body = http.MaxBytesReader(w, r.Body, 256<<10)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// an empty string is a legitimate edit, so presence is checked here
	if req.Text == nil {
		writeError(w, common.NewAppError(common.CodeInvalidInput, "text is required", common.ErrInvalidInput))
		return
	}
	h.respond(w, http.StatusOK)(h.pipeline.EditText(r.Context(), chi.URLParam(r, "id"), *req.Text))
}

func (h *SessionHandler) ChangeMode(w http.ResponseWriter, r *http.Request) {
	var req changeModeRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK)(h.pipeline.ChangeMode(r.Context(), chi.URLParam(r, "id"), mode))
}

func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusAccepted)(h.pipeline.StartAnalysis(r.Context(), chi.URLParam(r, "id")))
}

// ReportError records a client-side failure such as a denied camera.
func (h *SessionHandler) ReportError(w http.ResponseWriter, r *http.Request) {
	var req reportErrorRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK)(h.pipeline.ReportError(r.Context(), chi.URLParam(r, "id"), req.Message))
}

func (h *SessionHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.pipeline.ClearError(r.Context(), chi.URLParam(r, "id")))
}

func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.pipeline.Reset(r.Context(), chi.URLParam(r, "id")))
}

// Report renders the session's result as json (default), html or xlsx.
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.pipeline.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap.Result == nil {
		writeError(w, common.NewAppError(common.CodeInvalidTransition, "no analysis result yet", common.ErrInvalidTransition))
		return
	}
	view := report.BuildView(snap.Result, snap.Mode)

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "view": view})
	case "html":
		var buf bytes.Buffer
		if err := report.RenderHTML(&buf, view); err != nil {
			h.logger.Error("http.report.render_failed", zap.String("format", format), zap.Error(err))
			writeError(w, common.NewAppError(common.CodeInternal, "render report", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	case "xlsx":
		data, err := report.RenderXLSX(view)
		if err != nil {
			h.logger.Error("http.report.render_failed", zap.String("format", format), zap.Error(err))
			writeError(w, common.NewAppError(common.CodeInternal, "render report", err))
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "labelscan-"+id[:8]+".xlsx"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		writeError(w, common.NewAppError(common.CodeInvalidInput, "format must be one of: json html xlsx", common.ErrInvalidInput))
	}
}

func (h *SessionHandler) respond(w http.ResponseWriter, status int) func(pipeline.Snapshot, error) {
	return func(snap pipeline.Snapshot, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, snap)
	}
}

func parseMode(in string) (constants.Mode, error) {
	mode, ok := constants.ParseMode(in)
	if !ok {
		return "", common.NewAppError(common.CodeInvalidInput,
			"mode must be one of: "+strings.Join(constants.ModesAsStringSlice(), " "), common.ErrInvalidInput)
	}
	return mode, nil
}

func tooLargeOr(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), common.ErrInvalidInput)
	}
	return common.NewAppError(common.CodeInvalidInput, msg, err)
}
