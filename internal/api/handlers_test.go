package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kordocs/reggest/internal/answer"
	"github.com/kordocs/reggest/internal/chunker"
	"github.com/kordocs/reggest/internal/config"
	"github.com/kordocs/reggest/internal/doctree"
	"github.com/kordocs/reggest/internal/pipeline"
	"github.com/kordocs/reggest/internal/store"
)

const testToken = "test-token"

const sampleRegulation = `연봉제 시행 규정

제1장 총칙

제1조 (목적) 이 규정은 임직원의 연봉제 운영에 관한 기본 사항을 정함을 목적으로 한다. 연봉제의 적용을 받는 임직원의 보수 산정과 지급에 관하여는 다른 규정에 우선하여 이 규정을 적용한다.

제2조 (적용범위) 이 규정은 상근 임직원 전원에게 적용한다. 다만 별도의 계약에 따라 보수를 정하는 계약직 직원에 대하여는 그 계약이 정하는 바에 따른다.

제2장 보수

제3조 (보수의 구성) 보수는 기본연봉과 성과연봉으로 구성한다. 기본연봉은 직무의 난이도와 책임의 정도를 반영하여 직급별로 정하고, 성과연봉은 전년도 근무성적 평가 결과에 따라 차등 지급한다.

제4조 (지급일) 보수는 매월 21일에 지급한다. 지급일이 휴일인 때에는 그 전일에 지급한다.
`

type fakeChat struct {
	reply    string
	lastUser string
}

func (f *fakeChat) Chat(ctx context.Context, system, user string) (string, error) {
	f.lastUser = user
	return f.reply, nil
}

func (f *fakeChat) Model() string { return "fake-model" }
func (f *fakeChat) Close()        {}

func testServer(t *testing.T) (*Server, *pipeline.Orchestrator, *fakeChat) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{
		AuthToken:         testToken,
		Workers:           2,
		MaxQueueSize:      8,
		MaxUploadBytes:    1 << 20,
		JobTTL:            time.Hour,
		MinChunkChars:     200,
		MaxChunkChars:     800,
		ChunkOverlapChars: 150,
		EmbedProvider:     "none",
		EmbedBatch:        4,
		EmbedConcurrency:  2,
		QueryTopK:         5,
		MaxContextTokens:  3000,
	}

	orch := pipeline.NewOrchestrator(cfg, st, nil, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	chat := &fakeChat{reply: "제4조에 따라 보수는 매월 21일에 지급한다 [발췌 1]."}
	ans := answer.NewService(st, nil, chat, log, cfg.QueryTopK, cfg.MaxContextTokens)
	return NewServer(orch, ans, log, cfg), orch, chat
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// upload posts a file and returns the accepted job and doc ids.
func upload(t *testing.T, srv *Server, filename string, data []byte, fields map[string]string) (jobID, docID string) {
	t.Helper()
	body, contentType := multipartBody(t, filename, data, fields)
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", body))
	req.Header.Set("Content-Type", contentType)
	rec := do(srv, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID   string `json:"job_id"`
		DocID   string `json:"doc_id"`
		PollURL string `json:"poll_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.PollURL != "/v1/jobs/"+resp.JobID {
		t.Errorf("poll_url = %q, want /v1/jobs/%s", resp.PollURL, resp.JobID)
	}
	return resp.JobID, resp.DocID
}

// waitForJob polls until the job reaches a terminal status.
func waitForJob(t *testing.T, orch *pipeline.Orchestrator, jobID string) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job := orch.GetJob(jobID)
		if job == nil {
			t.Fatalf("job %s not found", jobID)
		}
		snap := job.Snapshot()
		switch snap.Status {
		case pipeline.StatusDone, pipeline.StatusDupSkipped:
			return snap
		case pipeline.StatusFailed:
			t.Fatalf("job failed: %v", snap.Progress.Errors)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in status %s", snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if rec := do(srv, req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUploadLifecycle(t *testing.T) {
	srv, orch, _ := testServer(t)

	jobID, docID := upload(t, srv, "연봉제규정.txt", []byte(sampleRegulation),
		map[string]string{"title": "연봉제 시행 규정"})
	snap := waitForJob(t, orch, jobID)
	if snap.Status != pipeline.StatusDone {
		t.Fatalf("status = %s", snap.Status)
	}

	// Job endpoint reflects the finished pipeline.
	rec := do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("job status = %d", rec.Code)
	}
	var js pipeline.JobSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &js); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if js.Status != pipeline.StatusDone || js.DocID != docID {
		t.Errorf("job = %+v", js)
	}
	if js.Progress.TotalChunks == 0 {
		t.Error("expected chunks in job progress")
	}

	// Document list and detail.
	rec = do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/documents", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Documents []store.DocumentRecord `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Documents) != 1 || list.Documents[0].DocID != docID {
		t.Fatalf("documents = %+v", list.Documents)
	}

	rec = do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/documents/"+docID, nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var doc store.DocumentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if doc.Title != "연봉제 시행 규정" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Chapters != 2 || doc.Articles != 4 {
		t.Errorf("chapters = %d, articles = %d", doc.Chapters, doc.Articles)
	}

	// Chunks come back in reading order.
	rec = do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/documents/"+docID+"/chunks", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("chunks status = %d", rec.Code)
	}
	var chunks struct {
		DocID  string              `json:"doc_id"`
		Chunks []store.ChunkRecord `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &chunks); err != nil {
		t.Fatalf("decode chunks: %v", err)
	}
	if len(chunks.Chunks) == 0 {
		t.Fatal("no chunks returned")
	}
	for i, c := range chunks.Chunks {
		if c.Index != i+1 {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if !strings.HasPrefix(c.ChunkID, docID+"_c") {
			t.Errorf("chunk id %q lacks doc prefix", c.ChunkID)
		}
	}

	// Delete and verify it is gone.
	rec = do(srv, authed(httptest.NewRequest(http.MethodDelete, "/v1/documents/"+docID, nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/documents/"+docID, nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestUploadDuplicateContent(t *testing.T) {
	srv, orch, _ := testServer(t)

	jobA, docA := upload(t, srv, "규정.txt", []byte(sampleRegulation), nil)
	waitForJob(t, orch, jobA)

	// Same content under a different name resolves to the first document.
	jobB, _ := upload(t, srv, "규정_사본.txt", []byte(sampleRegulation), nil)
	snap := waitForJob(t, orch, jobB)
	if snap.Status != pipeline.StatusDupSkipped {
		t.Fatalf("status = %s, want %s", snap.Status, pipeline.StatusDupSkipped)
	}
	if snap.DocID != docA {
		t.Errorf("dup job doc_id = %s, want %s", snap.DocID, docA)
	}

	rec := do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/documents", nil)))
	var list struct {
		Documents []store.DocumentRecord `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(list.Documents))
	}
}

func TestUploadExplicitDocIDConflict(t *testing.T) {
	srv, orch, _ := testServer(t)

	jobID, docID := upload(t, srv, "a.txt", []byte(sampleRegulation),
		map[string]string{"doc_id": "reg_2024_001"})
	if docID != "reg_2024_001" {
		t.Fatalf("doc_id = %s", docID)
	}
	waitForJob(t, orch, jobID)

	body, contentType := multipartBody(t, "b.txt", []byte("다른 내용의 문서입니다."),
		map[string]string{"doc_id": "reg_2024_001"})
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", body))
	req.Header.Set("Content-Type", contentType)
	if rec := do(srv, req); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	srv, _, _ := testServer(t)

	t.Run("unsupported extension", func(t *testing.T) {
		body, contentType := multipartBody(t, "문서.xyz", []byte("내용"), nil)
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", body))
		req.Header.Set("Content-Type", contentType)
		rec := do(srv, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("title", "제목만 있음")
		mw.Close()
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", &buf))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := do(srv, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid size band", func(t *testing.T) {
		body, contentType := multipartBody(t, "규정.txt", []byte(sampleRegulation),
			map[string]string{"min_chars": "800", "max_chars": "200"})
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", body))
		req.Header.Set("Content-Type", contentType)
		rec := do(srv, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "invalid chunking parameters") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("file too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 1<<20+1)
		body, contentType := multipartBody(t, "big.txt", big, nil)
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/documents", body))
		req.Header.Set("Content-Type", contentType)
		rec := do(srv, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestJobStatusNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/jobs/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	srv, orch, chat := testServer(t)

	jobID, docID := upload(t, srv, "연봉제규정.txt", []byte(sampleRegulation), nil)
	waitForJob(t, orch, jobID)

	payload := `{"query": "지급일"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := do(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != chat.reply {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Model != "fake-model" {
		t.Errorf("model = %q", resp.Model)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected sources")
	}
	if resp.Sources[0].DocID != docID {
		t.Errorf("source doc = %s, want %s", resp.Sources[0].DocID, docID)
	}
	if !strings.Contains(chat.lastUser, "지급일") {
		t.Error("prompt does not carry the query")
	}

	// The chat call shows up in the stats endpoint.
	rec = do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/stats", nil)))
	var stats struct {
		LLM map[string]answer.LatencySnapshot `json:"llm"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.LLM["chat"].Count != 1 {
		t.Errorf("chat latency count = %d, want 1", stats.LLM["chat"].Count)
	}
}

func TestQueryEmptyQuery(t *testing.T) {
	srv, _, _ := testServer(t)
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"  "}`)))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(srv, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryRenderTables(t *testing.T) {
	srv, orch, _ := testServer(t)

	// Build a document whose text carries a table anchor, the path the
	// plain .txt upload cannot produce.
	head := "제1장 급여\n제15조 (급여 지급) 임직원의 급여는 다음 표에 따라 직급별로 지급한다. " +
		strings.Repeat("급여 지급의 세부 기준은 별도로 정한다. ", 8) + "\n"
	tableBody := "본봉 950 월\n수당 120 월\n"
	tail := "제16조 (여비) 출장 여비는 실비로 정산하여 지급한다. " +
		strings.Repeat("여비 정산의 세부 절차는 별도로 정한다. ", 8) + "\n"
	src := head + tableBody + tail

	anchors := []doctree.TableAnchor{{
		TableID: "t001",
		Offset:  len(head),
		Length:  len(tableBody),
		Grid:    [][]string{{"항목", "금액", "주기"}, {"본봉", "950", "월"}, {"수당", "120", "월"}},
		Caption: "표 1: 3행 × 3열",
	}}

	doc, err := chunker.Process("doc_tbl", "급여 규정", src, anchors,
		chunker.SizeBand{MinChars: 100, MaxChars: 400, OverlapChars: 50})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	err = orch.Store().InsertProcessedDocument(context.Background(), doc, store.InsertMeta{
		Filename:    "급여규정.hwpx",
		ContentHash: pipeline.ContentHashHex([]byte(src)),
	})
	if err != nil {
		t.Fatalf("InsertProcessedDocument: %v", err)
	}

	payload := `{"query": "급여", "render_tables": true}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := do(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected sources")
	}
	if len(resp.Tables) == 0 {
		t.Fatal("expected rendered tables")
	}
	tbl := resp.Tables[0]
	if tbl.TableID != "t001" {
		t.Errorf("table id = %s", tbl.TableID)
	}
	if !strings.Contains(tbl.HTML, "<th>항목</th>") {
		t.Errorf("table HTML = %q", tbl.HTML)
	}
	if len(tbl.Grid) != 3 {
		t.Errorf("grid rows = %d", len(tbl.Grid))
	}
}

func TestStats(t *testing.T) {
	srv, orch, _ := testServer(t)

	jobID, _ := upload(t, srv, "규정.txt", []byte(sampleRegulation), nil)
	waitForJob(t, orch, jobID)

	rec := do(srv, authed(httptest.NewRequest(http.MethodGet, "/v1/stats", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Store      store.Stats `json:"store"`
		QueueDepth int         `json:"queue_depth"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Store.Documents != 1 {
		t.Errorf("documents = %d, want 1", resp.Store.Documents)
	}
	if resp.Store.Chunks == 0 {
		t.Error("expected chunks in stats")
	}
}
