package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/ledger"
)

// RecordHistory appends discovery runs and device failures to the ledger
func RecordHistory(bus *eventbus.Bus, l *ledger.Ledger) {
	bus.Subscribe(eventbus.EventTypeDiscovery, func(e eventbus.Event) {
		if err := l.Append(ledger.EventDiscovery, "", e.Data); err != nil {
			log.Error().Err(err).Msg("Failed to record discovery run")
		}
	})

	bus.Subscribe(eventbus.EventTypeDeviceError, func(e eventbus.Event) {
		source, _ := e.Data["key"].(string)
		payload := map[string]any{
			"op":    e.Data["op"],
			"error": e.Data["error"],
		}
		if err := l.Append(ledger.EventDeviceError, source, payload); err != nil {
			log.Error().Err(err).Msg("Failed to record device error")
		}
	})
}
