package handlers

import (
	"encoding/json"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

// App holds shared dependencies for all handlers.
type App struct {
	Users      *models.UserStore
	Settings   *models.SettingStore
	TablePrefs *models.TablePrefStore
	Controls   *models.ResourceControlStore
	Teams      *models.TeamStore
	WS         *ws.Server
	Docker     docker.Client
	Compose    *compose.Cache
	Hub        *tables.Hub
	NoAuth     bool // Skip authentication checks (all endpoints open)

	JWTSecret       string
	Version         string
	StacksDir       string
	DefaultPageSize int
	RefreshDebounce time.Duration

	needSetup atomic.Bool
	sessions  *sessionRegistry
	debouncer *channelDebouncer
}

// SetNeedSetup records whether the first administrator still has to be created.
func (app *App) SetNeedSetup(v bool) {
	app.needSetup.Store(v)
}

// NeedSetup reports whether no user exists yet.
func (app *App) NeedSetup() bool {
	return app.needSetup.Load()
}

// Register wires every event handler into app.WS. Call once, before serving.
func Register(app *App) {
	app.sessions = newSessionRegistry()
	if app.debouncer == nil {
		app.debouncer = newChannelDebouncer(app.RefreshDebounce)
	}
	RegisterAuthHandlers(app)
	RegisterTableHandlers(app)
	RegisterTeamHandlers(app)
	RegisterSettingsHandlers(app)

	app.WS.OnDisconnect(func(c *ws.Conn) {
		app.sessions.closeAll(c.ID())
	})
}

// checkLogin verifies that the connection is authenticated.
// Returns the user ID or sends an error ack and returns 0.
// When --no-auth is enabled, connections are auto-authenticated at connect time.
func checkLogin(c *ws.Conn, msg *ws.ClientMessage) int {
	uid := c.UserID()
	if uid == 0 {
		sendError(c, msg, "Not logged in")
	}
	return uid
}

// checkAdmin is checkLogin for administrator-only events.
func checkAdmin(c *ws.Conn, msg *ws.ClientMessage) int {
	uid := checkLogin(c, msg)
	if uid == 0 {
		return 0
	}
	if !c.IsAdmin() {
		sendError(c, msg, "Administrator access required")
		return 0
	}
	return uid
}

func sendError(c *ws.Conn, msg *ws.ClientMessage, text string) {
	if msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.ErrorResponse{OK: false, Msg: text})
	}
}

func sendOK(c *ws.Conn, msg *ws.ClientMessage) {
	if msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.OkResponse{OK: true})
	}
}

// parseArgs unmarshals the Args JSON array into a slice of json.RawMessage.
func parseArgs(msg *ws.ClientMessage) []json.RawMessage {
	if msg == nil || len(msg.Args) == 0 {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(msg.Args, &args); err != nil {
		slog.Warn("parse args", "err", err)
		return nil
	}
	return args
}

// argString extracts a string from args at the given index.
func argString(args []json.RawMessage, index int) string {
	if index >= len(args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[index], &s); err != nil {
		return ""
	}
	return s
}

// argObject extracts a JSON object from args at the given index into dst.
// A JSON null leaves dst untouched and reports false.
func argObject(args []json.RawMessage, index int, dst any) bool {
	if index >= len(args) || string(args[index]) == "null" {
		return false
	}
	return json.Unmarshal(args[index], dst) == nil
}

// argNull reports whether the argument at index is missing or a JSON null.
func argNull(args []json.RawMessage, index int) bool {
	return index >= len(args) || string(args[index]) == "null"
}

// argBool extracts a bool from args at the given index.
func argBool(args []json.RawMessage, index int) bool {
	if index >= len(args) {
		return false
	}
	var b bool
	if err := json.Unmarshal(args[index], &b); err != nil {
		return false
	}
	return b
}

// argInt extracts an integer from args at the given index. ok is false when
// the argument is missing, not a number, fractional or outside the int range.
func argInt(args []json.RawMessage, index int) (n int, ok bool) {
	if index >= len(args) {
		return 0, false
	}
	var f float64 // JSON numbers decode as float64
	if err := json.Unmarshal(args[index], &f); err != nil {
		return 0, false
	}
	// float64(math.MaxInt) rounds up to 2^63, itself out of range.
	if f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}
