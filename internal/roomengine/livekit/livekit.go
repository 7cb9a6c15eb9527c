// Package livekit implements roomengine.Engine against a LiveKit server.
package livekit

import (
	"context"
	"fmt"
	"strings"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/anandk/vidya-server/internal/roomengine"
)

// Engine talks to a LiveKit deployment through its room service API and
// mints access tokens locally with the API secret.
type Engine struct {
	wsURL     string
	apiKey    string
	apiSecret string
	client    *lksdk.RoomServiceClient
}

// New creates a LiveKit engine. wsURL is the client-facing ws:// or
// wss:// URL; the room service endpoint is derived from it.
func New(wsURL, apiKey, apiSecret string) *Engine {
	return &Engine{
		wsURL:     wsURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    lksdk.NewRoomServiceClient(httpURL(wsURL), apiKey, apiSecret),
	}
}

// ServerURL returns the websocket URL clients connect to.
func (e *Engine) ServerURL() string {
	return e.wsURL
}

// ListRooms returns the rooms matching names.
func (e *Engine) ListRooms(ctx context.Context, names []string) ([]roomengine.Room, error) {
	resp, err := e.client.ListRooms(ctx, &livekit.ListRoomsRequest{Names: names})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]roomengine.Room, 0, len(resp.Rooms))
	for _, r := range resp.Rooms {
		rooms = append(rooms, roomengine.Room{
			Name:            r.Name,
			SID:             r.Sid,
			NumParticipants: int(r.NumParticipants),
		})
	}
	return rooms, nil
}

// ListParticipants enumerates participants of a room.
func (e *Engine) ListParticipants(ctx context.Context, roomName string) ([]roomengine.Participant, error) {
	resp, err := e.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	participants := make([]roomengine.Participant, 0, len(resp.Participants))
	for _, p := range resp.Participants {
		participants = append(participants, roomengine.Participant{
			Identity: p.Identity,
			Name:     p.Name,
			IsAgent:  p.Kind == livekit.ParticipantInfo_AGENT,
		})
	}
	return participants, nil
}

// CreateRoom creates a room with the given bounds.
func (e *Engine) CreateRoom(ctx context.Context, opts roomengine.CreateRoomOptions) (*roomengine.Room, error) {
	room, err := e.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            opts.Name,
		EmptyTimeout:    uint32(opts.EmptyTimeout.Seconds()),
		MaxParticipants: uint32(opts.MaxParticipants),
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	return &roomengine.Room{
		Name:            room.Name,
		SID:             room.Sid,
		NumParticipants: int(room.NumParticipants),
	}, nil
}

// DeleteRoom removes a room, disconnecting any participants.
func (e *Engine) DeleteRoom(ctx context.Context, roomName string) error {
	if _, err := e.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomName}); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// MintToken produces a signed join token scoped to exactly one room.
// When req.Dispatch is set the token embeds a room configuration that
// tells LiveKit to dispatch the named agent (or any agent if unnamed)
// into the room on join.
func (e *Engine) MintToken(req roomengine.TokenRequest) (string, error) {
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     req.Room,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(e.apiKey, e.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(req.Identity).
		SetName(req.Name).
		SetValidFor(req.TTL)

	if req.Metadata != "" {
		at.SetMetadata(req.Metadata)
	}

	if req.Dispatch {
		at.SetRoomConfig(&livekit.RoomConfiguration{
			Agents: []*livekit.RoomAgentDispatch{
				{AgentName: req.AgentName, Metadata: req.Metadata},
			},
		})
	}

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// httpURL converts a websocket URL to the HTTP endpoint the room
// service client expects.
func httpURL(url string) string {
	switch {
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	}
	return url
}

// Ensure Engine implements roomengine.Engine.
var _ roomengine.Engine = (*Engine)(nil)
