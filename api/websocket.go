package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Non-browser clients send no Origin header.
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

// wsMessage is one client → server frame of a live session.
type wsMessage struct {
	Type    string          `json:"type"` // "assemble" or "tokens"
	Request AssembleRequest `json:"request"`
}

// handleWebSocket runs a live assemble session: every source update pushed
// by the client is answered with a fresh assemble (or tokenize) result.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read failed: %v", err)
			}
			return
		}

		var reply any
		switch msg.Type {
		case "tokens":
			reply = s.tokensReply(&msg.Request)
		default:
			reply = s.assemble(&msg.Request)
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("websocket write failed: %v", err)
			return
		}
	}
}

func (s *Server) tokensReply(req *AssembleRequest) *TokensResponse {
	tokens, lexErr := tokenizeRequest(req.Source, req.Filename)
	if lexErr != nil {
		return &TokensResponse{Error: lexErr}
	}
	return &TokensResponse{Success: true, Tokens: tokens}
}
