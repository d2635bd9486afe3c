package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/core"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/extract"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
	"github.com/joseph-ayodele/labelscan/internal/repository"
)

const analysisJSON = `{
  "health_score": 62,
  "eatability": "Occasionally OK",
  "breakdown": {"sweeteners": "10%", "preservatives": "2%", "flagged": ["Sodium benzoate"]},
  "confidence_analysis": [{"ingredient": "Sodium benzoate", "confidence": 80, "risk_level": 5, "condition": "Allergic reactions"}],
  "interactions": []
}`

var pngSignature = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubRecognizer struct{ text string }

func (s stubRecognizer) Recognize(_ context.Context, _ entity.Image) <-chan extract.Event {
	ch := make(chan extract.Event, 1)
	ch <- extract.Event{Progress: 100, Text: s.text, Confidence: 0.9, Done: true}
	close(ch)
	return ch
}

type stubAnalyzer struct {
	key      string
	response string
}

func (s stubAnalyzer) CheckCredentials() error {
	if s.key == "" {
		return common.NewAppError(common.CodeAuthMissing, "Gemini API key is missing", common.ErrAuthMissing)
	}
	return nil
}

func (s stubAnalyzer) Submit(context.Context, string) (string, error) {
	return s.response, nil
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T, an stubAnalyzer) *testServer {
	t.Helper()
	repo := repository.NewSessionRepository(repository.SessionConfig{TTL: time.Minute}, nil)
	p := core.NewProcessor(core.Config{MaxUploadBytes: 1 << 10, Workers: 1, QueueSize: 4, JobTimeout: 5 * time.Second},
		nil, repo, stubRecognizer{text: "Water, Sugar, Sodium benzoate"}, an)
	srv := httptest.NewServer(NewRouter(Config{RequestTimeout: 5 * time.Second, MaxUploadBytes: 1 << 10}, p, nil))
	t.Cleanup(func() {
		srv.Close()
		p.Shutdown(context.Background())
	})
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path, contentType string, body []byte) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(body))
	require.NoError(ts.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func (ts *testServer) json(method, path string, body any) *http.Response {
	ts.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(ts.t, err)
	}
	return ts.do(method, path, "application/json", raw)
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func (ts *testServer) createSession(mode string) pipeline.Snapshot {
	ts.t.Helper()
	res := ts.json(http.MethodPost, "/api/v1/sessions", map[string]string{"mode": mode})
	require.Equal(ts.t, http.StatusCreated, res.StatusCode)
	return decode[pipeline.Snapshot](ts.t, res)
}

func (ts *testServer) upload(id string, data []byte, filename string) *http.Response {
	ts.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(ts.t, err)
	_, err = fw.Write(data)
	require.NoError(ts.t, err)
	require.NoError(ts.t, mw.Close())
	return ts.do(http.MethodPost, "/api/v1/sessions/"+id+"/image", mw.FormDataContentType(), buf.Bytes())
}

func (ts *testServer) waitForStage(id string, stage constants.Stage) pipeline.Snapshot {
	ts.t.Helper()
	var snap pipeline.Snapshot
	require.Eventually(ts.t, func() bool {
		res, err := ts.srv.Client().Get(ts.srv.URL + "/api/v1/sessions/" + id)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		if json.NewDecoder(res.Body).Decode(&snap) != nil {
			return false
		}
		return snap.Stage == stage && !snap.Recognizing && !snap.Analyzing
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

func errorCode(t *testing.T, res *http.Response) string {
	t.Helper()
	return decode[errorBody](t, res).Error.Code
}

func TestHealthAndModes(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})

	res := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = ts.do(http.MethodGet, "/api/v1/modes", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body := decode[struct {
		Modes []modeDTO `json:"modes"`
	}](t, res)
	require.Len(t, body.Modes, 3)
	assert.Equal(t, constants.ModeGeneral, body.Modes[0].ID)
	assert.NotEmpty(t, body.Modes[0].Title)
}

func TestIndexIsServed(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})
	res := ts.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}

func TestFullFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k", response: analysisJSON})
	snap := ts.createSession("")
	assert.Equal(t, constants.ModeGeneral, snap.Mode)
	id := snap.ID

	res := ts.upload(id, pngSignature, "label.png")
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap = decode[pipeline.Snapshot](t, res)
	assert.Equal(t, constants.StageExtract, snap.Stage)
	require.NotNil(t, snap.Image)
	assert.Equal(t, constants.SourceUpload, snap.Image.Source)

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/extract", nil)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	snap = ts.waitForStage(id, constants.StageAnalyze)
	assert.Equal(t, "Water, Sugar, Sodium benzoate", snap.RawText)

	res = ts.json(http.MethodPut, "/api/v1/sessions/"+id+"/text", map[string]string{"text": "Water, Sodium benzoate"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Water, Sodium benzoate", decode[pipeline.Snapshot](t, res).EditedText)

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	snap = ts.waitForStage(id, constants.StageResults)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 62, snap.Result.HealthScore)

	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id+"/report", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	report := decode[struct {
		View struct {
			Score struct {
				Value int    `json:"value"`
				Band  string `json:"band"`
			} `json:"score"`
		} `json:"view"`
	}](t, res)
	assert.Equal(t, 62, report.View.Score.Value)
	assert.Equal(t, "yellow", report.View.Score.Band)

	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id+"/report?format=html", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var html bytes.Buffer
	_, _ = html.ReadFrom(res.Body)
	assert.Contains(t, html.String(), "Sodium benzoate")

	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id+"/report?format=xlsx", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, xlsxContentType, res.Header.Get("Content-Type"))
	f, err := excelize.OpenReader(res.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Summary")

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap = decode[pipeline.Snapshot](t, res)
	assert.Equal(t, constants.StageUpload, snap.Stage)
	assert.Equal(t, constants.ModeGeneral, snap.Mode)
}

func TestCameraCaptureFromDataURL(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})
	id := ts.createSession("allergen").ID

	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngSignature)
	res := ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/image", map[string]string{"data_url": url})
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap := decode[pipeline.Snapshot](t, res)
	require.NotNil(t, snap.Image)
	assert.Equal(t, constants.SourceCamera, snap.Image.Source)
	assert.Equal(t, "image/png", snap.Image.MIMEType)
	assert.Equal(t, constants.ModeAllergen, snap.Mode)
}

func TestDecodeDataURL(t *testing.T) {
	data, mimeType, err := decodeDataURL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, []byte("abc"), data)

	for _, bad := range []string{"image/jpeg;base64,AAAA", "data:image/jpeg;base64", "data:image/jpeg,AAAA", "data:image/jpeg;base64,!!"} {
		_, _, err := decodeDataURL(bad)
		require.ErrorIs(t, err, common.ErrInvalidInput, bad)
	}
}

func TestCaptureRejectsBadUploads(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})
	id := ts.createSession("general").ID

	res := ts.upload(id, []byte("%PDF-1.7 not an image"), "label.pdf")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, common.CodeInvalidInput, errorCode(t, res))

	res = ts.upload(id, bytes.Repeat([]byte{0xff}, 4<<10), "huge.png")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/image", map[string]string{"data_url": "nope"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownSessions(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})

	res := ts.do(http.MethodGet, "/api/v1/sessions/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, common.CodeNotFound, errorCode(t, res))

	res = ts.do(http.MethodGet, "/api/v1/sessions/6f1c0b8e-8a57-4c8e-9d55-0f6a4b1c2d3e", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	id := ts.createSession("general").ID
	res = ts.do(http.MethodDelete, "/api/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})

	res := ts.json(http.MethodPost, "/api/v1/sessions", map[string]string{"mode": "keto"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	id := ts.createSession("diabetic").ID

	res = ts.json(http.MethodPut, "/api/v1/sessions/"+id+"/text", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, common.CodeInvalidInput, errorCode(t, res))

	res = ts.do(http.MethodPut, "/api/v1/sessions/"+id+"/mode", "application/json", []byte(`{"mode":`))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = ts.json(http.MethodPut, "/api/v1/sessions/"+id+"/mode", map[string]string{"mode": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = ts.json(http.MethodPut, "/api/v1/sessions/"+id+"/mode", map[string]string{"mode": "Allergen Detective"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, constants.ModeAllergen, decode[pipeline.Snapshot](t, res).Mode)
}

func TestInvalidTransitionsAreConflicts(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})
	id := ts.createSession("general").ID

	res := ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/extract", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, common.CodeInvalidTransition, errorCode(t, res))

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id+"/report", "", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestMissingKeyIsReportedOnSession(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{})
	id := ts.createSession("general").ID
	require.Equal(t, http.StatusOK, ts.upload(id, pngSignature, "label.png").StatusCode)
	require.Equal(t, http.StatusAccepted, ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/extract", nil).StatusCode)
	ts.waitForStage(id, constants.StageAnalyze)

	res := ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil)
	assert.Equal(t, http.StatusPreconditionFailed, res.StatusCode)
	body := decode[errorBody](t, res)
	assert.Equal(t, common.CodeAuthMissing, body.Error.Code)
	assert.True(t, strings.Contains(body.Error.Message, "API key"))

	res = ts.do(http.MethodGet, "/api/v1/sessions/"+id, "", nil)
	snap := decode[pipeline.Snapshot](t, res)
	assert.NotEmpty(t, snap.Error)

	res = ts.do(http.MethodDelete, "/api/v1/sessions/"+id+"/error", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[pipeline.Snapshot](t, res).Error)
}

func TestClientErrorsAreRecorded(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k"})
	id := ts.createSession("general").ID

	res := ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/error", map[string]string{"message": "Unable to access camera."})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Unable to access camera.", decode[pipeline.Snapshot](t, res).Error)

	res = ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/error", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownReportFormat(t *testing.T) {
	ts := newTestServer(t, stubAnalyzer{key: "k", response: analysisJSON})
	id := ts.createSession("general").ID
	require.Equal(t, http.StatusOK, ts.upload(id, pngSignature, "label.png").StatusCode)
	require.Equal(t, http.StatusAccepted, ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/extract", nil).StatusCode)
	ts.waitForStage(id, constants.StageAnalyze)
	require.Equal(t, http.StatusAccepted, ts.json(http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil).StatusCode)
	ts.waitForStage(id, constants.StageResults)

	res := ts.do(http.MethodGet, "/api/v1/sessions/"+id+"/report?format=pdf", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
