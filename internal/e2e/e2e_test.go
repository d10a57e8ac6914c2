package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jeefy/pybot/internal/chat"
	"github.com/jeefy/pybot/internal/codecheck"
	"github.com/jeefy/pybot/internal/metrics"
	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/server"
	"github.com/jeefy/pybot/internal/store"
)

// setupServer opens the SQLite database at path, seeds the built-in corpus and
// serves the API in-process, the same way "pybot serve" does.
func setupServer(t *testing.T, path string) (*httptest.Server, func()) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	corpus, err := store.BuiltinCorpus()
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	if _, err := st.SeedPatterns(ctx, corpus); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exec := codecheck.NewExecutor(codecheck.ExecutorConfig{Disabled: true}, nil)
	svc := chat.NewService(st, codecheck.NewChecker(exec, nil), metrics.NewCollector(), nil)
	ts := httptest.NewServer(server.New(svc, st, nil).Router())
	return ts, func() {
		ts.Close()
		st.Close()
	}
}

func ask(t *testing.T, baseURL string, req models.ChatRequest) models.ChatResponse {
	t.Helper()
	b, _ := json.Marshal(req)
	res, err := http.Post(baseURL+"/api/chat", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status chat: %d", res.StatusCode)
	}
	var got models.ChatResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	return got
}

func train(t *testing.T, baseURL string, req models.TrainRequest) int64 {
	t.Helper()
	b, _ := json.Marshal(req)
	res, err := http.Post(baseURL+"/api/train", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post train: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status train: %d", res.StatusCode)
	}
	var got struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode train: %v", err)
	}
	return got.ID
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %s: %d", url, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

// TestE2E_conversationFlow walks through a browser session: a greeting, a styled
// question, a pasted snippet with a syntax error, and a question nobody has
// answered yet.
func TestE2E_conversationFlow(t *testing.T) {
	ts, cleanup := setupServer(t, filepath.Join(t.TempDir(), "pybot.db"))
	defer cleanup()

	var status map[string]any
	getJSON(t, ts.URL+"/api/status", &status)
	if status["status"] != "online" || status["database"] != "SQLite Local Storage" {
		t.Fatalf("unexpected status %v", status)
	}

	hello := ask(t, ts.URL, models.ChatRequest{Message: "hello"})
	if hello.Category != "greeting" || hello.Confidence != 1.0 {
		t.Fatalf("expected greeting, got %+v", hello)
	}

	loops := ask(t, ts.URL, models.ChatRequest{
		Message:         "Please explain in beginner-friendly terms with simple examples: for loop",
		Style:           "beginner",
		OriginalMessage: "for loop",
	})
	if loops.Style != "beginner" || loops.Category == models.CategoryDefault {
		t.Fatalf("expected a styled corpus answer, got %+v", loops)
	}
	if !strings.Contains(loops.Message, "Every expert was once a beginner") {
		t.Fatalf("expected beginner framing, got %q", loops.Message)
	}

	code := ask(t, ts.URL, models.ChatRequest{Message: "why does this fail?\n```python\ndef greet(name:\n    print(name)\n```"})
	if code.Category != models.CategoryCodeCheck || code.Confidence != 1.0 {
		t.Fatalf("expected code check, got %+v", code)
	}
	if !strings.Contains(code.Message, "Code Syntax Check: FAILED") {
		t.Fatalf("expected failed syntax report, got %q", code.Message)
	}

	miss := ask(t, ts.URL, models.ChatRequest{Message: "zzzz qqqq xxxx"})
	if miss.Category != models.CategoryDefault || miss.Confidence != 0.1 {
		t.Fatalf("expected default answer, got %+v", miss)
	}

	var recs []models.ConversationRecord
	getJSON(t, ts.URL+"/api/conversations", &recs)
	if len(recs) != 4 {
		t.Fatalf("expected 4 recorded conversations, got %d", len(recs))
	}
	if recs[2].InputText != "for loop" || recs[2].Style != "beginner" {
		t.Fatalf("expected original message recorded, got %+v", recs[2])
	}
}

// TestE2E_trainedPatternsSurviveRestart trains a pattern, restarts the service on
// the same database file (which reseeds the corpus) and asks again.
func TestE2E_trainedPatternsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pybot.db")

	ts, cleanup := setupServer(t, path)
	id := train(t, ts.URL, models.TrainRequest{Pattern: "Walrus Operator", Response: "Use := to assign inside an expression.", Category: "operators"})
	got := ask(t, ts.URL, models.ChatRequest{Message: "walrus operator"})
	if got.Category != "operators" {
		t.Fatalf("expected trained answer before restart, got %+v", got)
	}
	var before models.Stats
	getJSON(t, ts.URL+"/stats", &before)
	cleanup()

	ts, cleanup = setupServer(t, path)
	defer cleanup()

	got = ask(t, ts.URL, models.ChatRequest{Message: "walrus operator"})
	if got.Message != "Use := to assign inside an expression." {
		t.Fatalf("expected trained answer after restart, got %+v", got)
	}

	var after models.Stats
	getJSON(t, ts.URL+"/stats", &after)
	if after.TotalPatterns != before.TotalPatterns || after.TrainedPatterns != 1 {
		t.Fatalf("reseed changed pattern counts: before %+v after %+v", before, after)
	}
	if after.TotalConversations != 2 {
		t.Fatalf("expected 2 conversations across restarts, got %d", after.TotalConversations)
	}

	var p models.PatternEntry
	getJSON(t, ts.URL+"/patterns/"+strconv.FormatInt(id, 10), &p)
	if p.Source != models.SourceTrained || p.Pattern != "Walrus Operator" {
		t.Fatalf("unexpected trained pattern %+v", p)
	}
}
