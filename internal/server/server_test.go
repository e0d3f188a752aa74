package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/jobs"
	"github.com/spigell/jd-validator/internal/page"
	"github.com/spigell/jd-validator/internal/pipeline"
	"github.com/spigell/jd-validator/internal/portfolio"
)

type fakeIndex struct {
	corpus []portfolio.Entry
	docs   int
	loads  []bool
	err    error
}

func (f *fakeIndex) Collection() string { return "portfolio" }

func (f *fakeIndex) SetCorpus(entries []portfolio.Entry) { f.corpus = entries }

func (f *fakeIndex) HasCorpus() bool { return f.corpus != nil }

func (f *fakeIndex) Load(_ context.Context, force bool) error {
	f.loads = append(f.loads, force)
	if f.err != nil {
		return f.err
	}
	if force {
		f.docs = 0
	}
	if f.docs == 0 {
		f.docs = len(f.corpus)
	}
	return nil
}

func (f *fakeIndex) Clear(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.docs = 0
	return nil
}

func (f *fakeIndex) Count(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.docs, nil
}

type fakeProcessor struct {
	err  error
	urls []string
	text []string
}

func (f *fakeProcessor) URL(_ context.Context, u string) (*pipeline.Report, error) {
	f.urls = append(f.urls, u)
	return f.report(), f.err
}

func (f *fakeProcessor) Text(_ context.Context, text string) (*pipeline.Report, error) {
	f.text = append(f.text, text)
	return f.report(), f.err
}

func (f *fakeProcessor) report() *pipeline.Report {
	if f.err != nil {
		return nil
	}
	return &pipeline.Report{
		Results: []pipeline.Result{{Job: jobs.Record{Role: "Go Engineer"}, Document: "doc"}},
		Step:    pipeline.Step{Initial: 1, Composed: 1},
	}
}

func newTestServer(idx *fakeIndex, proc *fakeProcessor) *httptest.Server {
	s := New(Deps{Index: idx, Processor: proc, Parser: portfolio.NewReader(nil)})
	return httptest.NewServer(s.Router())
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeIndex{}, &fakeProcessor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(&fakeIndex{}, &fakeProcessor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPortfolioLifecycle(t *testing.T) {
	idx := &fakeIndex{corpus: []portfolio.Entry{{Techstack: "Go", Links: "l1"}, {Techstack: "Rust", Links: "l2"}}}
	srv := newTestServer(idx, &fakeProcessor{})
	defer srv.Close()

	status, body := do(t, http.MethodGet, srv.URL+"/portfolio", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, "portfolio", body["collection"])
	assert.Equal(t, true, body["has_corpus"])

	status, body = do(t, http.MethodPost, srv.URL+"/portfolio/load", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = do(t, http.MethodDelete, srv.URL+"/portfolio", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])

	status, _ = do(t, http.MethodPost, srv.URL+"/portfolio/load?force=true", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []bool{false, true}, idx.loads)
}

func TestPortfolioForcedLoadWithoutCorpus(t *testing.T) {
	idx := &fakeIndex{docs: 3}
	srv := newTestServer(idx, &fakeProcessor{})
	defer srv.Close()

	status, body := do(t, http.MethodPost, srv.URL+"/portfolio/load?force=true", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "upload a CSV first")
	assert.Empty(t, idx.loads, "index must not be cleared")
	assert.Equal(t, 3, idx.docs)

	status, body = do(t, http.MethodGet, srv.URL+"/portfolio", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["has_corpus"])
}

func TestPortfolioUpload(t *testing.T) {
	idx := &fakeIndex{docs: 7}
	srv := newTestServer(idx, &fakeProcessor{})
	defer srv.Close()

	csv := "Techstack,Links\nGo,https://example.com/go\n,https://example.com/blank\nPython,https://example.com/py\n"
	status, body := do(t, http.MethodPost, srv.URL+"/portfolio/upload", csv)

	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	assert.Len(t, body["rejected"], 1)
	assert.Equal(t, []bool{true}, idx.loads, "upload must force a reload")
	assert.Len(t, idx.corpus, 2)
}

func TestPortfolioUploadRejectsBadFiles(t *testing.T) {
	idx := &fakeIndex{}
	srv := newTestServer(idx, &fakeProcessor{})
	defer srv.Close()

	status, body := do(t, http.MethodPost, srv.URL+"/portfolio/upload", "Skills,URL\nGo,x\n")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Techstack")

	status, _ = do(t, http.MethodPost, srv.URL+"/portfolio/upload", "Techstack,Links\n,\n Go ,\n")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, idx.loads)
}

func TestPortfolioIndexUnavailable(t *testing.T) {
	idx := &fakeIndex{err: fmt.Errorf("%w: count: dial tcp", index.ErrUnavailable)}
	srv := newTestServer(idx, &fakeProcessor{})
	defer srv.Close()

	status, body := do(t, http.MethodGet, srv.URL+"/portfolio", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], "index unavailable")
}

func TestProcess(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(&fakeIndex{}, proc)
	defer srv.Close()

	status, body := do(t, http.MethodPost, srv.URL+"/process", `{"url":"https://example.com/careers"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"https://example.com/careers"}, proc.urls)
	require.Contains(t, body, "results")
	assert.Len(t, body["results"], 1)

	status, _ = do(t, http.MethodPost, srv.URL+"/process", `{"text":"Senior Go Engineer"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Senior Go Engineer"}, proc.text)
}

func TestProcessValidation(t *testing.T) {
	srv := newTestServer(&fakeIndex{}, &fakeProcessor{})
	defer srv.Close()

	for _, body := range []string{`not json`, `{}`, `{"url":"https://x","text":"y"}`, `{"text":"   "}`} {
		status, _ := do(t, http.MethodPost, srv.URL+"/process", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}
}

func TestProcessErrorStatus(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"parse":       {err: &jobs.ParseError{Message: "response is not valid JSON"}, want: http.StatusUnprocessableEntity},
		"fetch":       {err: fmt.Errorf("%w: https://x: unexpected status 404", page.ErrFetch), want: http.StatusBadGateway},
		"unavailable": {err: fmt.Errorf("load skill index: %w", index.ErrUnavailable), want: http.StatusServiceUnavailable},
		"other":       {err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(&fakeIndex{}, &fakeProcessor{err: tt.err})
			defer srv.Close()

			status, body := do(t, http.MethodPost, srv.URL+"/process", `{"url":"https://example.com"}`)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}
