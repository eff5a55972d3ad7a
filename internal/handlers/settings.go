package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/ws"
)

type settingsResponse struct {
	OK       bool            `json:"ok"`
	Settings models.Settings `json:"settings"`
}

func RegisterSettingsHandlers(app *App) {
	app.WS.Handle("getSettings", app.handleGetSettings)
	app.WS.Handle("setSettings", app.handleSetSettings)
}

// serverInfo is the public part of the settings plus the version.
func (app *App) serverInfo() ServerInfo {
	info := ServerInfo{Version: app.Version}
	if app.Settings == nil {
		return info
	}
	st, err := app.Settings.Settings()
	if err != nil {
		slog.Warn("load settings", "err", err)
		return info
	}
	info.LogoURL = st.LogoURL
	return info
}

// pageSize is the page size new table sessions start with.
func (app *App) pageSize() int {
	if app.Settings == nil {
		return app.DefaultPageSize
	}
	st, err := app.Settings.Settings()
	if err != nil {
		slog.Warn("load settings", "err", err)
		return app.DefaultPageSize
	}
	return st.PageSize(app.DefaultPageSize)
}

func (app *App) handleGetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	st, err := app.Settings.Settings()
	if err != nil {
		slog.Error("load settings", "err", err)
		sendError(c, msg, "Failed to load settings")
		return
	}
	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, settingsResponse{OK: true, Settings: st})
	}
}

// handleSetSettings replaces the settings. Args: [settings].
func (app *App) handleSetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	args := parseArgs(msg)
	if argNull(args, 0) {
		sendError(c, msg, "Invalid settings")
		return
	}
	var st models.Settings
	if err := json.Unmarshal(args[0], &st); err != nil {
		sendError(c, msg, "Invalid settings")
		return
	}
	if err := st.Validate(); err != nil {
		sendError(c, msg, "Invalid settings: "+err.Error())
		return
	}
	if err := app.Settings.Update(st); err != nil {
		slog.Error("save settings", "err", err)
		sendError(c, msg, "Failed to save settings")
		return
	}

	slog.Info("settings updated")
	ws.BroadcastAuthenticated(app.WS, "info", app.serverInfo(), nil)
	sendOK(c, msg)
}
