package api

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
)

// GET /api/views/:id/ws streams query, display, notice and options events of
// a view session. The first message is the full snapshot.
func ViewStreamHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			svc.Logger.Printf("view %s: websocket accept: %v", vs.ID, err)
			return
		}
		defer conn.CloseNow()

		events, stop := vs.subscribe()
		defer stop()

		// the client only listens; reads are drained to notice the close
		ctx := conn.CloseRead(c.Request.Context())
		caps := checker(c)
		if err := svc.send(ctx, conn, event{Type: "snapshot", Data: svc.snapshot(vs, caps)}); err != nil {
			return
		}

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "view unmounted")
					return
				}
				if ev.Type == "query" {
					// rows are rendered for the connected caller
					ev = event{Type: "snapshot", Data: svc.snapshot(vs, caps)}
				}
				if err := svc.send(ctx, conn, ev); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			}
		}
	}
}

func (s *Service) send(ctx context.Context, conn *websocket.Conn, ev event) error {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(wctx, conn, ev); err != nil {
		if websocket.CloseStatus(err) == -1 {
			s.Logger.Printf("views: websocket write: %v", err)
		}
		return err
	}
	return nil
}
