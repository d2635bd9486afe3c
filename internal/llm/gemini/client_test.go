package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

func newTestClient(t *testing.T, key string, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{APIKey: key, BaseURL: srv.URL, Model: "gemini-test"}, nil, WithHTTPClient(srv.Client()))
	return c, &hits
}

func TestSubmitSendsPromptAndParams(t *testing.T) {
	var got generateRequest
	c, _ := newTestClient(t, "secret-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"health_score\":"},{"text":" 80}"}]}}]}`))
	})

	text, err := c.Submit(context.Background(), "analyze this")
	require.NoError(t, err)
	assert.Equal(t, `{"health_score": 80}`, text)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "analyze this", got.Contents[0].Parts[0].Text)
	assert.Equal(t, llm.DefaultGenerationParams(), got.GenerationConfig)
}

func TestMissingKeyMakesNoRequest(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	c, hits := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Submit(context.Background(), "prompt")
	require.ErrorIs(t, err, common.ErrAuthMissing)
	assert.Equal(t, common.CodeAuthMissing, common.Code(err))
	assert.Equal(t, int32(0), hits.Load())
	assert.ErrorIs(t, c.CheckCredentials(), common.ErrAuthMissing)
}

func TestNon2xxIsRequestFailed(t *testing.T) {
	c, hits := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"backend unavailable"}}`))
	})

	_, err := c.Submit(context.Background(), "prompt")
	require.ErrorIs(t, err, common.ErrRequestFailed)
	msg := common.UserMessage(err)
	assert.Contains(t, msg, "500")
	assert.Contains(t, msg, "backend unavailable")
	assert.Equal(t, int32(1), hits.Load(), "a failed request is not retried")
}

func TestEmptyCandidates(t *testing.T) {
	c, _ := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := c.Submit(context.Background(), "prompt")
	require.ErrorIs(t, err, common.ErrEmptyCandidate)
	assert.Equal(t, common.CodeEmptyCandidate, common.Code(err))
}

func TestUndecodableBody(t *testing.T) {
	c, _ := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := c.Submit(context.Background(), "prompt")
	require.ErrorIs(t, err, common.ErrRequestFailed)
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Submit(ctx, "prompt")
	require.ErrorIs(t, err, common.ErrRequestFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEndpointEscapesKey(t *testing.T) {
	c := NewClient(Config{APIKey: "a&b=c", BaseURL: "https://example.test/v1beta/", Model: "m"}, nil)
	assert.Equal(t, "https://example.test/v1beta/models/m:generateContent?key=a%26b%3Dc", c.endpoint())
}
