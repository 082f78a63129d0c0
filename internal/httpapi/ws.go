package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/silapakurthi/collabboard/internal/protocol"
	"github.com/silapakurthi/collabboard/pkg/ids"
	"github.com/silapakurthi/collabboard/pkg/model"
	"github.com/silapakurthi/collabboard/pkg/mutation"
	"github.com/silapakurthi/collabboard/pkg/presence"
	"github.com/silapakurthi/collabboard/pkg/store"
)

// boardConn is one client's WebSocket connection to a board, generalized
// from the teacher's Connection (pkg/server/connection.go): a read loop
// handling client messages plus a goroutine forwarding the board's change
// stream, both writing through a single mutex-guarded send.
type boardConn struct {
	boardID string
	userID  string

	conn   *websocket.Conn
	api    *mutation.API
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex
}

func (s *Server) handleBoardSocket(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("boardId")
	if boardID == "" {
		http.Error(w, "board id required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = "anon-" + ids.NewObjectID()
	}
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = userID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	bc := &boardConn{boardID: boardID, userID: userID, conn: conn, api: s.mutations, ctx: ctx, cancel: cancel}
	defer func() {
		conn.Close(websocket.StatusNormalClosure, "")
		s.presences.Remove(boardID, userID)
	}()

	if err := bc.handle(displayName, s); err != nil {
		log.Info().Err(err).Str("board_id", boardID).Str("user_id", userID).Msg("board connection closed")
	}
}

func (bc *boardConn) handle(displayName string, s *Server) error {
	hub, err := s.registry.Get(bc.boardID)
	if err != nil {
		return fmt.Errorf("get board hub: %w", err)
	}

	events, unsubscribeEvents := hub.Subscribe()
	defer unsubscribeEvents()
	presenceEvents, unsubscribePresence := s.presences.Subscribe()
	defer unsubscribePresence()

	if err := bc.api.WritePresence(bc.boardID, bc.userID, displayName, model.CursorPos{}); err != nil {
		log.Warn().Err(err).Msg("initial presence write failed")
	}

	if err := bc.send(protocol.NewSnapshotMsg(nil, s.presences.Snapshot(bc.boardID))); err != nil {
		return err
	}

	go bc.forwardEvents(events, presenceEvents)

	for {
		readCtx, readCancel := context.WithTimeout(bc.ctx, 5*time.Minute)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, bc.conn, &msg)
		readCancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := bc.handleMessage(&msg, displayName); err != nil {
			log.Warn().Err(err).Str("board_id", bc.boardID).Msg("error handling client message")
		}
	}
}

func (bc *boardConn) handleMessage(msg *protocol.ClientMsg, displayName string) error {
	ctx := bc.ctx
	switch {
	case msg.CreateObject != nil:
		_, err := bc.api.CreateObject(ctx, bc.boardID, bc.userID, msg.CreateObject.Object)
		return err
	case msg.UpdateObject != nil:
		_, err := bc.api.UpdateObject(ctx, bc.boardID, bc.userID, msg.UpdateObject.ObjectID, msg.UpdateObject.Fields)
		return err
	case msg.DeleteObject != nil:
		return bc.api.DeleteObject(ctx, bc.boardID, msg.DeleteObject.ObjectID)
	case msg.Cursor != nil:
		return bc.api.WritePresence(bc.boardID, bc.userID, displayName, msg.Cursor.Cursor)
	case msg.Keepalive != nil:
		return bc.api.Keepalive(bc.boardID, bc.userID, displayName)
	}
	return nil
}

func (bc *boardConn) forwardEvents(events <-chan store.ChangeEvent, presenceEvents <-chan presence.Event) {
	for {
		select {
		case <-bc.ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				bc.cancel()
				return
			}
			if err := bc.send(protocol.FromChangeEvent(evt)); err != nil {
				log.Warn().Err(err).Msg("forward change event failed")
				bc.cancel()
				return
			}
		case evt, ok := <-presenceEvents:
			if !ok {
				return
			}
			if evt.BoardID != bc.boardID {
				continue
			}
			if err := bc.send(protocol.FromPresenceEvent(evt)); err != nil {
				log.Warn().Err(err).Msg("forward presence event failed")
				bc.cancel()
				return
			}
		}
	}
}

func (bc *boardConn) send(msg *protocol.ServerMsg) error {
	bc.sendMu.Lock()
	defer bc.sendMu.Unlock()

	writeCtx, cancel := context.WithTimeout(bc.ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, bc.conn, msg)
}
