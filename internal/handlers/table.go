package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chainid/console/internal/collection"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

const (
	// EventTableFrame pushes a freshly derived page after every state change.
	EventTableFrame = "tableFrame"
	// EventResourceControlChanged tells administrators about ownership changes.
	EventResourceControlChanged = "resourceControlChanged"
)

const openTimeout = 15 * time.Second

type tableOpenResponse struct {
	OK    bool         `json:"ok"`
	Frame tables.Frame `json:"frame"`
}

func RegisterTableHandlers(app *App) {
	// Table events run in arrival order on the connection's serial worker so
	// a sort followed by a page change is applied in that order.
	app.WS.HandleSerial("tableOpen", app.handleTableOpen)
	app.WS.HandleSerial("tableSort", app.handleTableSort)
	app.WS.HandleSerial("tableFilter", app.handleTableFilter)
	app.WS.HandleSerial("tablePageSize", app.handleTablePageSize)
	app.WS.HandleSerial("tablePage", app.handleTablePage)
	app.WS.HandleSerial("tableSelect", app.handleTableSelect)
	app.WS.HandleSerial("tableSelectPage", app.handleTableSelectPage)
	app.WS.HandleSerial("tableClearSelection", app.handleTableClearSelection)
	app.WS.HandleSerial("tableClose", app.handleTableClose)
	app.WS.Handle("resourceControl", app.handleResourceControl)
}

// tableArg reads the table name at args[0].
func tableArg(c *ws.Conn, msg *ws.ClientMessage) (tables.Name, bool) {
	name, err := tables.ParseName(argString(parseArgs(msg), 0))
	if err != nil {
		sendError(c, msg, err.Error())
		return "", false
	}
	return name, true
}

// openSession returns the connection's session on the table named in args[0].
func (app *App) openSession(c *ws.Conn, msg *ws.ClientMessage) *tables.Session {
	if checkLogin(c, msg) == 0 {
		return nil
	}
	name, ok := tableArg(c, msg)
	if !ok {
		return nil
	}
	s := app.sessions.get(c.ID(), name)
	if s == nil {
		sendError(c, msg, "Table is not open: "+string(name))
	}
	return s
}

func (app *App) handleTableOpen(c *ws.Conn, msg *ws.ClientMessage) {
	uid := checkLogin(c, msg)
	if uid == 0 {
		return
	}
	name, ok := tableArg(c, msg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	// Tables without open sessions are not refreshed by the watcher
	if _, err := app.Hub.Refresh(ctx, name); err != nil {
		slog.Warn("table open refresh", "table", name, "err", err)
	}

	pref, err := app.TablePrefs.Get(uid, string(name))
	if err != nil {
		slog.Warn("table prefs", "err", err, "table", name)
	}

	viewer := tables.Viewer{UserID: uid, Admin: c.IsAdmin(), Teams: app.teamsOf(uid)}
	pageSize := app.pageSize()
	s, err := app.Hub.Open(ctx, name, viewer, pageSize, func(f tables.Frame) {
		ws.SendEvent(c, EventTableFrame, f)
	})
	if err != nil {
		slog.Error("table open", "table", name, "err", err)
		sendError(c, msg, "Failed to load "+string(name))
		return
	}
	switch {
	case pref != nil:
		s.Restore(collection.State{
			SortKey:        pref.SortKey,
			SortDescending: pref.SortDescending,
			PageSize:       pref.PageSize,
		})
	case pageSize == collection.AllRows:
		// Open treats zero as the table default
		s.SetPageSize(collection.AllRows)
	}
	// The identity may have changed or the connection closed while loading
	if c.UserID() != uid {
		s.Close()
		sendError(c, msg, "Not logged in")
		return
	}
	app.sessions.put(c.ID(), s)
	select {
	case <-c.Done():
		app.sessions.closeAll(c.ID())
		return
	default:
	}

	slog.Debug("table opened", "table", name, "conn", c.ID(), "open", app.sessions.count(c.ID()))
	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, tableOpenResponse{OK: true, Frame: s.Frame()})
	}
}

func (app *App) handleTableSort(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	s.Sort(argString(parseArgs(msg), 1))
	app.savePrefs(s)
	sendOK(c, msg)
}

func (app *App) handleTableFilter(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	s.Filter(argString(parseArgs(msg), 1))
	sendOK(c, msg)
}

func (app *App) handleTablePageSize(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	size, ok := argInt(parseArgs(msg), 1)
	if !ok {
		sendError(c, msg, "Page size must be a number")
		return
	}
	s.SetPageSize(size)
	app.savePrefs(s)
	sendOK(c, msg)
}

func (app *App) handleTablePage(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	index, ok := argInt(parseArgs(msg), 1)
	if !ok {
		sendError(c, msg, "Page must be a number")
		return
	}
	s.SetPage(index)
	sendOK(c, msg)
}

func (app *App) handleTableSelect(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	args := parseArgs(msg)
	s.Select(argString(args, 1), argBool(args, 2))
	sendOK(c, msg)
}

func (app *App) handleTableSelectPage(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	s.SelectPage(argBool(parseArgs(msg), 1))
	sendOK(c, msg)
}

func (app *App) handleTableClearSelection(c *ws.Conn, msg *ws.ClientMessage) {
	s := app.openSession(c, msg)
	if s == nil {
		return
	}
	s.ClearSelection()
	sendOK(c, msg)
}

func (app *App) handleTableClose(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	name, ok := tableArg(c, msg)
	if !ok {
		return
	}
	app.sessions.close(c.ID(), name)
	sendOK(c, msg)
}

// savePrefs remembers the session's ordering and page size for its user.
func (app *App) savePrefs(s *tables.Session) {
	st := s.State()
	err := app.TablePrefs.Save(s.Viewer().UserID, string(s.Table()), models.TablePref{
		SortKey:        st.SortKey,
		SortDescending: st.SortDescending,
		PageSize:       st.PageSize,
	})
	if err != nil {
		slog.Warn("save table prefs", "err", err, "table", s.Table())
	}
}

// ResourceControlChange is pushed to administrators after a control changes.
type ResourceControlChange struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Ownership    string `json:"ownership"`
}

// handleResourceControl sets or clears the ownership of a resource.
// Args: [resourceType, resourceId, control|null]. Only an explicit null
// clears the control.
func (app *App) handleResourceControl(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	args := parseArgs(msg)
	resourceType := argString(args, 0)
	resourceID := argString(args, 1)

	table, ok := tables.TableForResourceType(resourceType)
	if !ok || resourceID == "" {
		sendError(c, msg, "Unknown resource")
		return
	}

	ownership := models.OwnershipAdministrators
	if argNull(args, 2) {
		if err := app.Controls.Delete(resourceType, resourceID); err != nil {
			slog.Error("delete resource control", "err", err)
			sendError(c, msg, "Failed to save resource control")
			return
		}
	} else {
		var rc models.ResourceControl
		if err := json.Unmarshal(args[2], &rc); err != nil {
			sendError(c, msg, "Invalid resource control")
			return
		}
		rc.ResourceType = resourceType
		rc.ResourceID = resourceID
		if err := rc.Validate(); err != nil {
			sendError(c, msg, "Invalid resource control: "+err.Error())
			return
		}
		if !app.teamsExist(rc.Teams) {
			sendError(c, msg, "Unknown team")
			return
		}
		if err := app.Controls.Set(rc); err != nil {
			slog.Error("set resource control", "err", err)
			sendError(c, msg, "Failed to save resource control")
			return
		}
		ownership = rc.Ownership()
	}

	// Stack resources inherit their stack's control
	affected := []tables.Name{table}
	if table == tables.Stacks {
		affected = append(affected, tables.Containers, tables.Networks, tables.Volumes)
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	for _, name := range affected {
		if _, err := app.Hub.Refresh(ctx, name); err != nil {
			slog.Warn("refresh after resource control", "table", name, "err", err)
		}
	}

	slog.Info("resource control updated", "type", resourceType, "id", resourceID, "ownership", ownership)
	ws.BroadcastAuthenticated(app.WS, EventResourceControlChanged, ResourceControlChange{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Ownership:    ownership,
	}, (*ws.Conn).IsAdmin)
	sendOK(c, msg)
}
