package answer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kordocs/reggest/internal/store"
)

type fakeRetriever struct {
	vecResults  []store.SearchResult
	textResults []store.SearchResult
	tables      map[string]*store.TableRecord
	vecCalled   bool
	textCalled  bool
}

func (f *fakeRetriever) SearchVector(ctx context.Context, queryVector []float32, limit int, docID string) ([]store.SearchResult, error) {
	f.vecCalled = true
	return f.vecResults, nil
}

func (f *fakeRetriever) SearchText(ctx context.Context, query string, limit int, docID string) ([]store.SearchResult, error) {
	f.textCalled = true
	return f.textResults, nil
}

func (f *fakeRetriever) GetTable(ctx context.Context, docID, tableID string) (*store.TableRecord, error) {
	if t, ok := f.tables[tableID]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

type fakeChat struct {
	system string
	user   string
	called bool
	answer string
}

func (f *fakeChat) Chat(ctx context.Context, system, user string) (string, error) {
	f.called = true
	f.system = system
	f.user = user
	return f.answer, nil
}

func (f *fakeChat) Model() string { return "test-model" }
func (f *fakeChat) Close()        {}

type fakeEmbedder struct {
	called bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.called = true
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }
func (f *fakeEmbedder) Close()          {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func result(chunkID, content, path string, tableIDs []string, score float64) store.SearchResult {
	return store.SearchResult{
		Chunk: store.ChunkRecord{
			ChunkID:  chunkID,
			DocID:    "doc_a",
			Index:    2,
			Total:    4,
			Content:  content,
			Path:     path,
			TableIDs: tableIDs,
		},
		DocTitle: "연봉제 시행 규정",
		Score:    score,
	}
}

func TestService_Answer_GroundedFlow(t *testing.T) {
	ret := &fakeRetriever{
		vecResults: []store.SearchResult{
			result("doc_a_c0002", "제15조 (급여의 계산) ① 급여는 연봉의 12분의 1로 한다.",
				"제3장 급여 및 수당 > 제15조 (급여의 계산)", []string{"t001"}, 0.92),
		},
		tables: map[string]*store.TableRecord{
			"t001": {TableID: "t001", Caption: "표 1: 2행 × 2열", Markdown: "| 항목 | 금액 |\n| 본봉 | 950 |"},
		},
	}
	chat := &fakeChat{answer: "급여는 연봉의 12분의 1입니다 (제15조)."}
	emb := &fakeEmbedder{}
	svc := NewService(ret, emb, chat, testLogger(), 5, 3000)

	resp, err := svc.Answer(context.Background(), Request{Query: "급여는 어떻게 계산하나요?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !emb.called || !ret.vecCalled {
		t.Error("expected vector retrieval path")
	}
	if ret.textCalled {
		t.Error("text search should not run when vectors match")
	}
	if !chat.called {
		t.Fatal("chat was not called")
	}
	if !strings.Contains(chat.user, "[발췌 1 | 연봉제 시행 규정 | 제3장 급여 및 수당 > 제15조 (급여의 계산) | 조각 2/4]") {
		t.Errorf("prompt missing excerpt header:\n%s", chat.user)
	}
	if !strings.Contains(chat.user, "| 본봉 | 950 |") {
		t.Errorf("prompt missing table render:\n%s", chat.user)
	}
	if !strings.Contains(chat.user, "질문: 급여는 어떻게 계산하나요?") {
		t.Errorf("prompt missing question:\n%s", chat.user)
	}
	if !strings.Contains(chat.system, "발췌에 없는 내용은 추측하지") {
		t.Errorf("unexpected system prompt:\n%s", chat.system)
	}

	if resp.Answer != "급여는 연봉의 12분의 1입니다 (제15조)." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if resp.Model != "test-model" {
		t.Errorf("unexpected model %q", resp.Model)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(resp.Sources))
	}
	src := resp.Sources[0]
	if src.ChunkID != "doc_a_c0002" || src.Label != "2/4" || src.Score != 0.92 {
		t.Errorf("unexpected source %+v", src)
	}
}

func TestService_Answer_NoEvidence(t *testing.T) {
	ret := &fakeRetriever{}
	chat := &fakeChat{answer: "should not be used"}
	svc := NewService(ret, nil, chat, testLogger(), 5, 3000)

	resp, err := svc.Answer(context.Background(), Request{Query: "휴가 규정은?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if chat.called {
		t.Error("chat should not be called without evidence")
	}
	if resp.Answer != NoEvidenceAnswer {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(resp.Sources))
	}
}

func TestService_Answer_TextOnlyWithoutEmbedder(t *testing.T) {
	ret := &fakeRetriever{
		textResults: []store.SearchResult{
			result("doc_a_c0001", "제1조 (목적)", "제1조 (목적)", nil, 0.5),
		},
	}
	chat := &fakeChat{answer: "답"}
	svc := NewService(ret, nil, chat, testLogger(), 5, 3000)

	if _, err := svc.Answer(context.Background(), Request{Query: "목적"}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ret.vecCalled {
		t.Error("vector search should not run without an embedder")
	}
	if !ret.textCalled {
		t.Error("expected text search")
	}
}

func TestService_Answer_VectorEmptyFallsBackToText(t *testing.T) {
	ret := &fakeRetriever{
		textResults: []store.SearchResult{
			result("doc_a_c0001", "제1조 (목적)", "제1조 (목적)", nil, 0.5),
		},
	}
	chat := &fakeChat{answer: "답"}
	svc := NewService(ret, &fakeEmbedder{}, chat, testLogger(), 5, 3000)

	resp, err := svc.Answer(context.Background(), Request{Query: "목적"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !ret.vecCalled || !ret.textCalled {
		t.Error("expected vector attempt then text fallback")
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected 1 source from fallback, got %d", len(resp.Sources))
	}
}

func TestService_Answer_EmptyQueryFails(t *testing.T) {
	svc := NewService(&fakeRetriever{}, nil, &fakeChat{}, testLogger(), 5, 3000)
	if _, err := svc.Answer(context.Background(), Request{Query: "   "}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestService_ContextBudget(t *testing.T) {
	long := strings.Repeat("급여 기준 조항 내용 ", 100) // ~400 tokens per chunk
	ret := &fakeRetriever{
		vecResults: []store.SearchResult{
			result("doc_a_c0001", long, "제1조", nil, 0.9),
			result("doc_a_c0002", long, "제2조", nil, 0.8),
			result("doc_a_c0003", long, "제3조", nil, 0.7),
		},
	}
	chat := &fakeChat{answer: "답"}
	svc := NewService(ret, &fakeEmbedder{}, chat, testLogger(), 5, 500)

	resp, err := svc.Answer(context.Background(), Request{Query: "급여"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("budget should keep only the top chunk, got %d sources", len(resp.Sources))
	}
	if resp.Sources[0].ChunkID != "doc_a_c0001" {
		t.Errorf("top-scored chunk should survive, got %s", resp.Sources[0].ChunkID)
	}
}

func TestBuildAnswerPrompt_OrdersExcerpts(t *testing.T) {
	blocks := []ContextBlock{
		{DocTitle: "규정", Path: "제1조", Label: "1/2", Body: "본문 하나"},
		{DocTitle: "규정", Label: "2/2", Body: "본문 둘"},
	}
	p := BuildAnswerPrompt("질문입니다", blocks)

	i1 := strings.Index(p, "[발췌 1 | 규정 | 제1조 | 조각 1/2]")
	i2 := strings.Index(p, "[발췌 2 | 규정 | 조각 2/2]")
	if i1 < 0 || i2 < 0 || i2 < i1 {
		t.Errorf("excerpt headers missing or out of order:\n%s", p)
	}
	if !strings.HasSuffix(p, "질문: 질문입니다") {
		t.Errorf("prompt should end with the question:\n%s", p)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"급여 기준", 4},
		{"hello world", 2},
		{"제15조", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
