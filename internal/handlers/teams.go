package handlers

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

type teamCreateResponse struct {
	OK bool `json:"ok"`
	ID int  `json:"id"`
}

func RegisterTeamHandlers(app *App) {
	// Membership changes re-filter open sessions, so they share the serial
	// worker with table events.
	app.WS.HandleSerial("teamCreate", app.handleTeamCreate)
	app.WS.HandleSerial("teamDelete", app.handleTeamDelete)
	app.WS.HandleSerial("teamMembership", app.handleTeamMembership)
}

// teamsOf returns the teams a user belongs to, or nil on error.
func (app *App) teamsOf(userID int) []int {
	if app.Teams == nil {
		return nil
	}
	ids, err := app.Teams.TeamsOf(userID)
	if err != nil {
		slog.Warn("team lookup", "user", userID, "err", err)
		return nil
	}
	return ids
}

func (app *App) teamsExist(ids []int) bool {
	for _, id := range ids {
		if app.Teams == nil {
			return false
		}
		if _, err := app.Teams.Get(id); err != nil {
			return false
		}
	}
	return true
}

// teamsChanged refreshes the teams table and re-filters the sessions of users
// whose memberships changed.
func (app *App) teamsChanged(userIDs ...int) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if _, err := app.Hub.Refresh(ctx, tables.Teams); err != nil {
		slog.Warn("refresh teams", "err", err)
	}
	for _, id := range userIDs {
		app.Hub.SetTeams(id, app.teamsOf(id))
	}
}

// handleTeamCreate creates a team. Args: [name].
func (app *App) handleTeamCreate(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	team, err := app.Teams.Create(argString(parseArgs(msg), 0))
	if err != nil {
		sendError(c, msg, err.Error())
		return
	}
	app.teamsChanged()
	slog.Info("team created", "id", team.ID, "name", team.Name)
	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, teamCreateResponse{OK: true, ID: team.ID})
	}
}

// handleTeamDelete removes a team and its memberships. Args: [teamId].
func (app *App) handleTeamDelete(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	id, ok := argInt(parseArgs(msg), 0)
	if !ok {
		sendError(c, msg, "Team id must be a number")
		return
	}
	team, err := app.Teams.Get(id)
	if err == nil {
		err = app.Teams.Delete(id)
	}
	if errors.Is(err, models.ErrTeamNotFound) {
		sendError(c, msg, "Unknown team")
		return
	}
	if err != nil {
		slog.Error("delete team", "err", err)
		sendError(c, msg, "Failed to delete team")
		return
	}
	app.teamsChanged(slices.Collect(maps.Keys(team.Members))...)
	slog.Info("team deleted", "id", id)
	sendOK(c, msg)
}

// handleTeamMembership adds, changes or removes a member.
// Args: [teamId, userId, role|null] where role is "leader" or "member".
func (app *App) handleTeamMembership(c *ws.Conn, msg *ws.ClientMessage) {
	if checkAdmin(c, msg) == 0 {
		return
	}
	args := parseArgs(msg)
	teamID, ok := argInt(args, 0)
	if !ok {
		sendError(c, msg, "Team id must be a number")
		return
	}
	userID, ok := argInt(args, 1)
	if !ok {
		sendError(c, msg, "User id must be a number")
		return
	}
	user, err := app.Users.FindByID(userID)
	if err != nil || user == nil {
		sendError(c, msg, "Unknown user")
		return
	}

	if argNull(args, 2) {
		err = app.Teams.RemoveMembership(teamID, userID)
	} else {
		var role models.TeamRole
		switch argString(args, 2) {
		case "leader":
			role = models.TeamLeader
		case "member":
			role = models.TeamMember
		default:
			sendError(c, msg, "Role must be leader or member")
			return
		}
		err = app.Teams.SetMembership(teamID, userID, role)
	}
	if errors.Is(err, models.ErrTeamNotFound) {
		sendError(c, msg, "Unknown team")
		return
	}
	if err != nil {
		slog.Error("team membership", "err", err)
		sendError(c, msg, "Failed to update membership")
		return
	}

	app.teamsChanged(userID)
	slog.Info("team membership updated", "team", teamID, "user", user.Username)
	sendOK(c, msg)
}
