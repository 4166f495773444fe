package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/adapters/display"
	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

// IdentityFunc extracts the caller identity resolved by the auth middleware.
type IdentityFunc func(c echo.Context) string

type Server struct {
	upgrader      websocket.Upgrader
	messageBroker domain.MessageBroker
	hub           *Hub
	inbound       InboundHandler
	identity      IdentityFunc

	// attach serializes hub registration with the broker subscription it owns.
	attach sync.Mutex
}

func NewServer(messageBroker domain.MessageBroker, inbound InboundHandler, identity IdentityFunc) *Server {
	return &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		messageBroker: messageBroker,
		hub:           NewHub(),
		inbound:       inbound,
		identity:      identity,
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// Close disconnects every display.
func (s *Server) Close() {
	s.hub.CloseAll()
}

// subscribe registers client and routes its identity's turn events to it.
func (s *Server) subscribe(client *Client) (<-chan domain.Message, error) {
	s.attach.Lock()
	defer s.attach.Unlock()

	s.hub.Register(client)
	return s.messageBroker.Subscribe(client.ctx, display.TurnTopic, client.identity)
}

func (s *Server) unsubscribe(client *Client) {
	s.attach.Lock()
	defer s.attach.Unlock()

	if s.hub.Unregister(client) {
		s.messageBroker.Unsubscribe(display.TurnTopic, client.identity)
	}
}

// forward pushes turn events to client until its subscription is replaced or closed.
func (s *Server) forward(client *Client, events <-chan domain.Message) {
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := client.SendEvent(msg.Payload); err != nil {
				log.WithCtx(client.ctx).Warn("⚠️ Failed to push turn to display", zap.Error(err))
				return
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrSendInFlight):
		return "in_flight"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrEngineNotReady):
		return "invalid_state"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "internal"
}
