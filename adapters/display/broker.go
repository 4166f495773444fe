package display

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
	"go.uber.org/zap"
)

const TurnTopic = "companion.turns"

// BrokerDisplay publishes turn events for whichever transport renders them.
// The routing key is the identity, so each connected user sees only their own turns.
type BrokerDisplay struct {
	broker domain.MessageBroker
}

func NewBrokerDisplay(broker domain.MessageBroker) *BrokerDisplay {
	return &BrokerDisplay{broker: broker}
}

// Show implements domain.Display.
func (d *BrokerDisplay) Show(ctx context.Context, event domain.TurnEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithCtx(ctx).Error("❌ Failed to marshal turn event", zap.Error(err))
		return
	}

	err = d.broker.Publish(ctx, TurnTopic, event.Identity, payload)
	switch {
	case errors.Is(err, domain.ErrNoSubscribers):
		log.WithCtx(ctx).Debug("No display attached, turn not pushed")
	case err != nil:
		log.WithCtx(ctx).Warn("⚠️ Failed to publish turn event", zap.Error(err))
	}
}
