package handlers

import (
	"log/slog"

	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

const minPasswordLength = 6

// ServerInfo is pushed on every new connection.
type ServerInfo struct {
	Version string `json:"version"`
	LogoURL string `json:"logoURL,omitempty"`
}

type needSetupResponse struct {
	OK        bool `json:"ok"`
	NeedSetup bool `json:"needSetup"`
}

func RegisterAuthHandlers(app *App) {
	// Identity changes share the serial worker with table events, so a table
	// opened before a logout is closed by it and never outlives it.
	app.WS.HandleSerial("login", app.handleLogin)
	app.WS.HandleSerial("loginByToken", app.handleLoginByToken)
	app.WS.HandleSerial("logout", app.handleLogout)
	app.WS.HandleSerial("setup", app.handleSetup)
	app.WS.Handle("needSetup", app.handleNeedSetup)

	app.WS.HandleConnect(func(c *ws.Conn) {
		ws.SendEvent(c, "info", app.serverInfo())

		if app.NoAuth {
			c.SetUser(1, true)
			ws.SendEvent(c, "autoLogin", struct{}{})
			return
		}

		// No users yet: the client shows the setup page
		if app.NeedSetup() {
			ws.SendEvent(c, "setup", struct{}{})
		}
	})
}

func (app *App) handleLogin(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)

	// Login args can be either positional [username, password] or an
	// object {username, password}
	var username, password string
	var loginData struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if argObject(args, 0, &loginData) && loginData.Username != "" {
		username = loginData.Username
		password = loginData.Password
	} else {
		username = argString(args, 0)
		password = argString(args, 1)
	}

	if username == "" || password == "" {
		sendError(c, msg, "Incorrect username or password.")
		return
	}

	user, err := app.Users.FindByUsername(username)
	if err != nil {
		slog.Error("login lookup", "err", err)
		sendError(c, msg, "Internal error")
		return
	}

	if user == nil || !user.Active || !models.VerifyPassword(password, user.Password) {
		sendError(c, msg, "Incorrect username or password.")
		return
	}

	token, err := models.CreateJWT(user, app.JWTSecret)
	if err != nil {
		slog.Error("create jwt", "err", err)
		sendError(c, msg, "Internal error")
		return
	}

	app.loginConn(c, user)

	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.OkResponse{OK: true, Token: token})
	}

	slog.Info("user logged in", "username", username)
}

func (app *App) handleLoginByToken(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)
	token := argString(args, 0)
	if token == "" {
		sendError(c, msg, "Invalid token")
		return
	}

	claims, err := models.VerifyJWT(token, app.JWTSecret)
	if err != nil {
		slog.Debug("token verify failed", "err", err)
		sendError(c, msg, "Invalid token")
		return
	}

	user, err := app.Users.FindByUsername(claims.Username)
	if err != nil {
		slog.Error("token user lookup", "err", err)
		sendError(c, msg, "Internal error")
		return
	}
	if user == nil || !user.Active {
		sendError(c, msg, "User inactive or deleted")
		return
	}

	// Password change detection: compare shake256(storedPassword) with token's h claim
	if !claims.Matches(user) {
		sendError(c, msg, "Invalid token")
		return
	}

	app.loginConn(c, user)
	sendOK(c, msg)

	slog.Debug("token login", "username", claims.Username)
}

func (app *App) handleSetup(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)
	username := argString(args, 0)
	password := argString(args, 1)

	if username == "" || password == "" {
		sendError(c, msg, "Username and password required")
		return
	}
	if len(password) < minPasswordLength {
		sendError(c, msg, "Password is too weak. It should be at least 6 characters.")
		return
	}

	count, err := app.Users.Count()
	if err != nil {
		slog.Error("setup count", "err", err)
		sendError(c, msg, "Internal error")
		return
	}
	if count > 0 {
		sendError(c, msg, "The console has already been set up")
		return
	}

	if _, err := app.Users.Create(username, password, models.RoleAdministrator); err != nil {
		slog.Error("setup create user", "err", err)
		sendError(c, msg, "Failed to create user")
		return
	}

	app.SetNeedSetup(false)
	app.TriggerRefresh(tables.Users)
	sendOK(c, msg)

	slog.Info("setup complete", "username", username)
}

func (app *App) handleNeedSetup(c *ws.Conn, msg *ws.ClientMessage) {
	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, needSetupResponse{OK: true, NeedSetup: app.NeedSetup()})
	}
}

func (app *App) handleLogout(c *ws.Conn, msg *ws.ClientMessage) {
	app.sessions.closeAll(c.ID())
	c.SetUser(0, false)
	sendOK(c, msg)
}

// loginConn authenticates c as user. Table sessions opened under a previous
// identity are closed since their rows were filtered for that identity.
func (app *App) loginConn(c *ws.Conn, user *models.User) {
	if c.UserID() != user.ID {
		app.sessions.closeAll(c.ID())
	}
	c.SetUser(user.ID, user.IsAdmin())
}
