// Package testutil wires a complete console backend for end-to-end tests:
// a temp BoltDB, an in-memory Docker client, a stacks directory and a real
// HTTP server speaking the websocket protocol.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/db"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/handlers"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

const (
	AdminPassword = "testpass123"
	UserPassword  = "userpass123"
)

var msgIDCounter int64

// TestEnv holds a fully wired test application with temp DB and static Docker.
type TestEnv struct {
	App       *handlers.App
	Server    *httptest.Server
	WSServer  *ws.Server
	Docker    *docker.StaticClient
	StacksDir string
	DataDir   string
}

// Setup creates a test environment with a real HTTP server, BoltDB, and a
// StaticClient. The refresh watcher runs with a short debounce.
func Setup(t testing.TB) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	stacksDir := filepath.Join(tmpDir, "stacks")
	dataDir := filepath.Join(tmpDir, "data")
	if err := os.MkdirAll(stacksDir, 0755); err != nil {
		t.Fatal(err)
	}

	database, err := db.Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	users := models.NewUserStore(database)
	settings := models.NewSettingStore(database)
	prefs := models.NewTablePrefStore(database)
	controls := models.NewResourceControlStore(database)
	teams := models.NewTeamStore(database)

	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}

	dockerClient := docker.NewStaticClient()
	cache := compose.NewCache()
	cache.PopulateFromDisk(stacksDir)

	wss := ws.NewServer()
	app := &handlers.App{
		Users:      users,
		Settings:   settings,
		TablePrefs: prefs,
		Controls:   controls,
		Teams:      teams,
		WS:         wss,
		Docker:     dockerClient,
		Compose:    cache,
		Hub: tables.NewHub(tables.Sources{
			Docker:    dockerClient,
			Compose:   cache,
			StacksDir: stacksDir,
			Users:     users,
			Teams:     teams,
			Controls:  controls,
		}),
		JWTSecret:       jwtSecret,
		Version:         "test",
		StacksDir:       stacksDir,
		RefreshDebounce: 10 * time.Millisecond,
	}
	app.SetNeedSetup(true)
	handlers.Register(app)

	mux := http.NewServeMux()
	mux.Handle("/ws", wss)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	app.StartRefreshWatcher(ctx)
	if err := compose.StartWatcher(ctx, stacksDir, cache, 10*time.Millisecond, app.ComposeChanged); err != nil {
		t.Fatal("start compose watcher:", err)
	}

	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		server.Close()
		dockerClient.Close()
		database.Close()
	})

	return &TestEnv{
		App:       app,
		Server:    server,
		WSServer:  wss,
		Docker:    dockerClient,
		StacksDir: stacksDir,
		DataDir:   dataDir,
	}
}

// SeedAdmin creates the "admin" administrator.
func (e *TestEnv) SeedAdmin(t testing.TB) *models.User {
	t.Helper()
	u, err := e.App.Users.Create("admin", AdminPassword, models.RoleAdministrator)
	if err != nil {
		t.Fatal("seed admin:", err)
	}
	e.App.SetNeedSetup(false)
	return u
}

// SeedUser creates a standard user with UserPassword.
func (e *TestEnv) SeedUser(t testing.TB, username string) *models.User {
	t.Helper()
	u, err := e.App.Users.Create(username, UserPassword, models.RoleStandard)
	if err != nil {
		t.Fatal("seed user:", err)
	}
	return u
}

// DialWS opens a WebSocket connection to the test server.
// Push messages sent on connect (info, setup) are not drained here;
// SendAndReceive skips non-ack messages automatically.
func (e *TestEnv) DialWS(t testing.TB) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + e.Server.URL[4:] + "/ws" // http -> ws
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal("dial ws:", err)
	}
	conn.SetReadLimit(1 << 20)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

// Login sends a login event and waits for the ack with a JWT token.
func (e *TestEnv) Login(t testing.TB, conn *websocket.Conn, username, password string) string {
	t.Helper()
	resp := e.SendAndReceive(t, conn, "login", username, password)
	ok, _ := resp["ok"].(bool)
	if !ok {
		t.Fatalf("login failed: %v", resp)
	}
	token, _ := resp["token"].(string)
	return token
}

// SendAndReceive sends a WS event with an ack ID and returns the parsed ack
// data. Push messages read while waiting are dropped.
func (e *TestEnv) SendAndReceive(t testing.TB, conn *websocket.Conn, event string, args ...any) map[string]any {
	t.Helper()
	data, _ := e.sendAndCollect(t, conn, event, args...)
	return data
}

// SendAndCollect is SendAndReceive that also returns the payloads of the
// pushes named push that arrived before the ack.
func (e *TestEnv) SendAndCollect(t testing.TB, conn *websocket.Conn, push string, event string, args ...any) (map[string]any, []json.RawMessage) {
	t.Helper()
	data, pushes := e.sendAndCollect(t, conn, event, args...)
	var out []json.RawMessage
	for _, p := range pushes {
		if p.Event == push {
			out = append(out, p.Data)
		}
	}
	return data, out
}

// Push is a server push read off the wire.
type Push struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e *TestEnv) sendAndCollect(t testing.TB, conn *websocket.Conn, event string, args ...any) (map[string]any, []Push) {
	t.Helper()

	id := atomic.AddInt64(&msgIDCounter, 1)
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatal("marshal args:", err)
	}

	msg := map[string]any{
		"id":    id,
		"event": event,
		"args":  json.RawMessage(argsJSON),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal("marshal msg:", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatal("write:", err)
	}

	var pushes []Push
	for {
		_, respData, err := conn.Read(ctx)
		if err != nil {
			t.Fatal("read:", err)
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(respData, &raw); err != nil {
			t.Fatal("unmarshal response:", err)
		}

		if idRaw, ok := raw["id"]; ok {
			var ackID int64
			if err := json.Unmarshal(idRaw, &ackID); err == nil && ackID == id {
				var ack struct {
					Data map[string]any `json:"data"`
				}
				if err := json.Unmarshal(respData, &ack); err != nil {
					t.Fatal("unmarshal ack:", err)
				}
				return ack.Data, pushes
			}
			continue
		}

		var p Push
		if err := json.Unmarshal(respData, &p); err == nil && p.Event != "" {
			pushes = append(pushes, p)
		}
	}
}

// WaitForPush reads until a push named event arrives and returns its payload.
func (e *TestEnv) WaitForPush(t testing.TB, conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var p Push
		if err := json.Unmarshal(data, &p); err == nil && p.Event == event {
			return p.Data
		}
	}
}
