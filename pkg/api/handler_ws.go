package api

import (
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/reasonctl/pkg/hub"
)

// unknownSessionCloseCode is the WebSocket close status used to reject a
// connection naming a session_id that doesn't exist.
const unknownSessionCloseCode websocket.StatusCode = 4004

// wsHandler upgrades the connection and registers it with the hub under
// the session_id query parameter's room, translated from the teacher's
// echo-based handler_ws.go to gin/net-http.
func (s *Server) wsHandler(c *gin.Context) {
	sessionID := c.Query("session_id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin validation is out of scope; this mirrors the teacher's
		// current InsecureSkipVerify posture.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	if sessionID != "" {
		if _, found := s.sessions.Get(sessionID); !found {
			_ = conn.Close(unknownSessionCloseCode, "unknown session")
			return
		}
	}

	clientID := s.hub.Connect(sessionID, hub.NewSocket(conn))
	defer s.hub.Disconnect(clientID)

	ctx := c.Request.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// connection closed or context canceled; stop reading.
			return
		}

		var msg hub.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.hub.HandleClient(clientID, msg)
	}
}
