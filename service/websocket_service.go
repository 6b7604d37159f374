package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

const (
	wsReadLimit   = 512 * 1024
	wsIdleTimeout = 60 * time.Second
)

// WebSocketService runs RAG queries over a websocket connection, one at a
// time per connection.
type WebSocketService struct {
	rag      *RAGService
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWebSocketService(rag *RAGService, log *logger.Logger) *WebSocketService {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketService{
		rag: rag,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

func (s *WebSocketService) HandleQuery(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade error", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			s.writeError(conn, "invalid message")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketPing:
			s.write(conn, types.WebSocketResponse{Type: types.TypeWebsocketPong})
		case types.TypeWebsocketQuery:
			var payload types.QueryBody
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				s.writeError(conn, "invalid query payload")
				continue
			}
			s.write(conn, types.WebSocketResponse{
				Type:    types.TypeWebsocketProcessing,
				Payload: types.WebSocketProcessingResponse{Message: "Searching your documents"},
			})

			q := types.QueryRequest{
				Question:       payload.Question,
				UserID:         userID,
				ConversationID: payload.ConversationID,
				DocumentIDs:    payload.DocumentIDs,
			}
			if payload.MatchCount != nil {
				q.MatchCount = *payload.MatchCount
			}
			res, err := s.rag.Query(ctx, q)
			if err != nil {
				s.log.Error("WebSocket query failed", "user_id", userID, "error", err)
				s.writeError(conn, clientMessage(err))
				continue
			}
			s.write(conn, types.WebSocketResponse{Type: types.TypeWebsocketAnswer, Payload: ToQueryResponse(res)})
		default:
			s.writeError(conn, "unknown message type")
		}
	}
}

func (s *WebSocketService) write(conn *websocket.Conn, msg types.WebSocketResponse) {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("Write error", "error", err)
	}
}

func (s *WebSocketService) writeError(conn *websocket.Conn, message string) {
	s.write(conn, types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketErrorResponse{Error: message},
	})
}

// clientMessage hides internal failures from websocket clients.
func clientMessage(err error) string {
	if types.IsValidation(err) {
		return err.Error()
	}
	if errors.Is(err, types.ErrNotFound) {
		return "conversation not found"
	}
	return "failed to answer question"
}
