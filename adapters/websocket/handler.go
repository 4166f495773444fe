package websocket

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

// Handler serves the "/ws" endpoint. It blocks until the connection ends.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, s.identity(c), s.inbound)
	events, err := s.subscribe(client)
	if err != nil {
		log.WithCtx(client.ctx).Error("❌ Failed to subscribe display", zap.Error(err))
		s.hub.Unregister(client)
		return nil
	}
	defer s.unsubscribe(client)

	log.WithCtx(client.ctx).Info("🔌 Display connected", zap.Int("displays", s.hub.ClientCount()))
	go s.forward(client, events)
	client.Run()

	// Wait for the client context to be done (connection closed)
	<-client.Context().Done()
	log.WithCtx(client.ctx).Info("🔌 Display disconnected")
	return nil
}
