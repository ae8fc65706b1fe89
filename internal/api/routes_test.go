package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aibekov/chaincademy/internal/catalog"
	"github.com/aibekov/chaincademy/internal/certificate"
	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/aibekov/chaincademy/internal/ledger"
	"github.com/aibekov/chaincademy/internal/progress"
	"github.com/aibekov/chaincademy/internal/stats"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/go-chi/chi/v5"
)

// memRepo is an in-memory store.Repository for route tests.
type memRepo struct {
	users       map[string]*domain.User
	progress    map[string]*domain.ProgressRecord
	stats       map[string]*domain.UserStats
	submissions []*domain.Submission
	pingErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[string]*domain.User),
		progress: make(map[string]*domain.ProgressRecord),
		stats:    make(map[string]*domain.UserStats),
	}
}

func (m *memRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return m.users[userID], nil
}

func (m *memRepo) UpsertUser(ctx context.Context, user *domain.User) error {
	m.users[user.UserID] = user
	return nil
}

func (m *memRepo) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	return nil
}

func (m *memRepo) GetProgress(ctx context.Context, userID, courseID string) (*domain.ProgressRecord, error) {
	if rec, ok := m.progress[userID+":"+courseID]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (m *memRepo) UpsertProgress(ctx context.Context, rec *domain.ProgressRecord) error {
	key := rec.UserID + ":" + rec.CourseID
	cp := rec.Clone()
	if prev, ok := m.progress[key]; ok {
		cp.CertificateMinted = prev.CertificateMinted
		if prev.Completed {
			cp.Completed = true
		}
	} else {
		cp.CertificateMinted = false
	}
	m.progress[key] = cp
	return nil
}

func (m *memRepo) ListProgress(ctx context.Context, userID string) ([]*domain.ProgressRecord, error) {
	return nil, nil
}

func (m *memRepo) SetCertificateMinted(ctx context.Context, userID, courseID string) error {
	rec, ok := m.progress[userID+":"+courseID]
	if !ok || !rec.Completed {
		return errors.New("progress record not eligible for minting")
	}
	if rec.CertificateMinted {
		return store.ErrAlreadyMinted
	}
	rec.CertificateMinted = true
	return nil
}

func (m *memRepo) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	if st, ok := m.stats[userID]; ok {
		return st, nil
	}
	return &domain.UserStats{UserID: userID, Level: 1}, nil
}

func (m *memRepo) UpsertStats(ctx context.Context, st *domain.UserStats) error {
	m.stats[st.UserID] = st
	return nil
}

func (m *memRepo) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	m.submissions = append(m.submissions, sub)
	return nil
}

func (m *memRepo) ListSubmissions(ctx context.Context, userID string, limit int) ([]*domain.Submission, error) {
	return m.submissions, nil
}

func (m *memRepo) Ping(ctx context.Context) error { return m.pingErr }
func (m *memRepo) Close() error                   { return nil }

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(ctx context.Context, problemStatement, code string) (*domain.Verdict, error) {
	score := 95.0
	return &domain.Verdict{Valid: true, SyntaxCorrect: true, Compilable: true, Score: &score}, nil
}

type instantWriter struct{}

func (instantWriter) Mint(ctx context.Context, to, metadataURI string) (ledger.TxHandle, error) {
	return ledger.TxHandle{Hash: "0xminted"}, nil
}

func (instantWriter) WaitFinalized(ctx context.Context, handle ledger.TxHandle) error {
	return nil
}

func catalogYAML() []byte {
	return []byte(`title: Solidity Fundamentals
description: Learn the basics
level: Beginner
metadataUri: ipfs://cert/solidity-101
lessons:
  - id: intro
    title: Introduction
  - id: first-contract
    title: Your First Contract
    problem:
      title: Counter
      description: Write a counter contract
      hints:
        - Start with a uint256 state variable
        - Add an increment function
`)
}

func newTestServer(t *testing.T, repo *memRepo) *httptest.Server {
	t.Helper()

	cat := catalog.NewServiceFromFS(fstest.MapFS{
		"courses/solidity-101/index.yaml": {Data: catalogYAML()},
	}, "courses")
	if err := cat.Load(); err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	hub := events.NewHub()
	statsSvc := stats.NewService(repo, hub)
	tracker := progress.NewTracker(repo, acceptAllValidator{}, statsSvc, hub, store.RetryPolicy{})
	certSvc := certificate.NewService(repo, instantWriter{}, hub, store.RetryPolicy{})

	base := NewHandler(repo, cat, tracker, certSvc, statsSvc)

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	NewCourseHandler(base).RegisterRoutes(r)
	NewProgressHandler(base, true).RegisterRoutes(r)
	NewCertificateHandler(base, time.Minute).RegisterRoutes(r)
	NewAchievementHandler(base).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// client keeps the anon identity cookie across requests.
func testHTTPClient(t *testing.T, srv *httptest.Server) func(method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var cookies []*http.Cookie

	return func(method, path string, body interface{}) (*http.Response, map[string]interface{}) {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("Failed to encode body: %v", err)
			}
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequest(method, srv.URL+path, reader)
		if err != nil {
			t.Fatalf("Failed to build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(identity.WalletHeaderName, "0x1234567890abcdef1234567890abcdef12345678")
		for _, c := range cookies {
			req.AddCookie(c)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if len(resp.Cookies()) > 0 {
			cookies = resp.Cookies()
		}

		var decoded map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		resp.Body.Close()
		return resp, decoded
	}
}

func TestRoutes_ListCourses(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/courses", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	courses, ok := body["courses"].([]interface{})
	if !ok || len(courses) != 1 {
		t.Fatalf("Expected 1 course, got %v", body["courses"])
	}
}

func TestRoutes_CourseViewShowsUnlockState(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/courses/solidity-101", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	lessons := body["lessons"].([]interface{})
	first := lessons[0].(map[string]interface{})
	second := lessons[1].(map[string]interface{})

	if first["unlocked"] != true {
		t.Error("Expected first lesson unlocked")
	}
	if second["unlocked"] != false {
		t.Error("Expected second lesson locked")
	}
}

func TestRoutes_CourseViewHidesHints(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/courses/solidity-101", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	lessons := body["lessons"].([]interface{})
	problem, ok := lessons[1].(map[string]interface{})["problem"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected a problem on the second lesson")
	}
	if _, leaked := problem["hints"]; leaked {
		t.Error("Expected hints to stay out of the course view")
	}
	if problem["hint_count"] != float64(2) {
		t.Errorf("Expected hint_count 2, got %v", problem["hint_count"])
	}
}

func TestRoutes_LinearCourseFlow(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	// Establish identity.
	do(http.MethodGet, "/api/courses/solidity-101", nil)

	// Leave the first lesson for the second.
	resp, body := do(http.MethodPost, "/api/courses/solidity-101/advance",
		map[string]string{"from_lesson_id": "intro", "to_lesson_id": "first-contract"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	prog := body["progress"].(map[string]interface{})
	if prog["lessons"].(map[string]interface{})["intro"] != true {
		t.Error("Expected intro completed after advancing")
	}

	// Submit a valid solution to the final problem lesson.
	resp, body = do(http.MethodPost, "/api/courses/solidity-101/lessons/first-contract/submit",
		map[string]string{"code": "contract Counter { uint256 public count; }"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	verdict := body["verdict"].(map[string]interface{})
	if verdict["valid"] != true {
		t.Errorf("Expected valid verdict, got %v", verdict)
	}
	prog = body["progress"].(map[string]interface{})
	if prog["completed"] != true {
		t.Error("Expected course completion after final submission")
	}

	// Certificate is now mintable.
	resp, body = do(http.MethodGet, "/api/courses/solidity-101/certificate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["can_mint"] != true {
		t.Errorf("Expected can_mint true, got %v", body)
	}

	resp, body = do(http.MethodPost, "/api/courses/solidity-101/certificate/mint", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["tx_hash"] != "0xminted" {
		t.Errorf("Expected tx hash, got %v", body)
	}

	// Second mint attempt is rejected.
	resp, _ = do(http.MethodPost, "/api/courses/solidity-101/certificate/mint", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 on second mint, got %d", resp.StatusCode)
	}

	// Stats reflect the journey.
	resp, body = do(http.MethodGet, "/api/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["courses_completed"] != float64(1) {
		t.Errorf("Expected 1 completed course, got %v", body["courses_completed"])
	}
}

func TestRoutes_BlockedAdvancement(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, _ := do(http.MethodPost, "/api/courses/solidity-101/advance",
		map[string]string{"to_lesson_id": "first-contract"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for locked target, got %d", resp.StatusCode)
	}
}

func TestRoutes_MintBeforeCompletion(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, _ := do(http.MethodPost, "/api/courses/solidity-101/certificate/mint", nil)
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 before completion, got %d", resp.StatusCode)
	}
}

func TestRoutes_Hints(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/courses/solidity-101/lessons/first-contract/hint", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["hint"] != "Start with a uint256 state variable" {
		t.Errorf("Expected first hint, got %v", body["hint"])
	}

	resp, body = do(http.MethodGet, "/api/courses/solidity-101/lessons/first-contract/hint?index=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["hint"] != "Add an increment function" {
		t.Errorf("Expected second hint, got %v", body["hint"])
	}

	resp, _ = do(http.MethodGet, "/api/courses/solidity-101/lessons/first-contract/hint?index=5", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 past the last hint, got %d", resp.StatusCode)
	}

	resp, _ = do(http.MethodGet, "/api/courses/solidity-101/lessons/intro/hint", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for a lesson without a problem, got %d", resp.StatusCode)
	}
}

func TestRoutes_Achievements(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/achievements", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	views := body["achievements"].([]interface{})
	if len(views) != 5 {
		t.Fatalf("Expected 5 achievement definitions, got %d", len(views))
	}
	first := views[0].(map[string]interface{})
	if first["earned"] != false {
		t.Errorf("Expected nothing earned for a fresh learner, got %v", first)
	}
}

func TestRoutes_ListProgress(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, body := do(http.MethodGet, "/api/progress", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if _, ok := body["progress"].([]interface{}); !ok {
		t.Errorf("Expected a progress array, got %v", body["progress"])
	}
}

func TestRoutes_UnknownCourse(t *testing.T) {
	srv := newTestServer(t, newMemRepo())
	do := testHTTPClient(t, srv)

	resp, _ := do(http.MethodGet, "/api/courses/no-such-course", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
