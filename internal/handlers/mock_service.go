package handlers

import (
	"context"
	"net/http"
	"sync"

	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"
	"grid_adequacy/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockSession struct {
	id   string
	snap models.Snapshot
	errs map[string]error

	mu        sync.Mutex
	calls     []string
	lastIndex int

	done      chan struct{}
	closeOnce sync.Once
	// onClose runs before done is closed, like an engine tearing down its map.
	onClose func()
}

func newMockSession(id string) *mockSession {
	return &mockSession{
		id:   id,
		snap: models.Snapshot{SessionID: id, Phase: models.PhaseReady, Count: 7, Index: 6, Year: 2024},
		errs: map[string]error{},
		done: make(chan struct{}),
	}
}

func (m *mockSession) call(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.errs[name]
}

func (m *mockSession) callsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSession) ID() string { return m.id }
func (m *mockSession) TogglePlay(ctx context.Context) error {
	return m.call("toggle")
}
func (m *mockSession) Scrub(ctx context.Context, index int) error {
	m.mu.Lock()
	m.lastIndex = index
	m.mu.Unlock()
	return m.call("scrub")
}
func (m *mockSession) Retry(ctx context.Context) error {
	return m.call("retry")
}
func (m *mockSession) SurfaceReady(ctx context.Context) error {
	return m.call("ready")
}
func (m *mockSession) Snapshot() models.Snapshot { return m.snap }
func (m *mockSession) Close() {
	m.closeOnce.Do(func() {
		if m.onClose != nil {
			m.onClose()
		}
		close(m.done)
	})
}
func (m *mockSession) Done() <-chan struct{} { return m.done }

type mockSessions struct {
	byID    map[string]*mockSession
	openErr error

	mu     sync.Mutex
	opened []*mockSession
}

// Open mimics an engine start: the map is created and a first snapshot published.
func (m *mockSessions) Open(ctx context.Context, r mapsurface.Renderer, notify func(models.Snapshot)) (service.Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := newMockSession("ws-session")
	s.onClose = func() { _ = r.Remove() }
	if err := r.Create(mapsurface.MapOptions{Style: "style.json", Center: [2]float64{90.35, 23.8}, Zoom: 5.4}); err != nil {
		return nil, err
	}
	notify(s.snap)

	m.mu.Lock()
	m.opened = append(m.opened, s)
	m.mu.Unlock()
	return s, nil
}

func (m *mockSessions) lastOpened() *mockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opened) == 0 {
		return nil
	}
	return m.opened[len(m.opened)-1]
}

func (m *mockSessions) Get(id string) (service.Session, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, service.ErrSessionNotFound
	}
	return s, nil
}

func (m *mockSessions) Snapshots() []models.Snapshot {
	out := make([]models.Snapshot, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s.snap)
	}
	return out
}

func (m *mockSessions) Shutdown() {}

type mockEventLog struct {
	resp []models.SessionEvent
	err  error
	last service.LogFilter
}

func (m *mockEventLog) Record(models.SessionEvent) {}
func (m *mockEventLog) Run(ctx context.Context)    { <-ctx.Done() }
func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.SessionEvent, error) {
	m.last = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
