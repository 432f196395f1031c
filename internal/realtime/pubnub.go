package realtime

import (
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubBroadcaster fans out through the in-process hub and mirrors every
// publish to the event's PubNub channel, so SPA clients subscribed directly
// to PubNub see the same messages as hub-attached ones. Fire-and-forget on
// the PubNub side; delivery there is best-effort.
type PubNubBroadcaster struct {
	hub *Hub
	pn  *pubnub.PubNub
}

func NewPubNubBroadcaster(hub *Hub, pn *pubnub.PubNub) *PubNubBroadcaster {
	return &PubNubBroadcaster{hub: hub, pn: pn}
}

func (b *PubNubBroadcaster) Publish(eventID string, msg Message) {
	b.hub.Publish(eventID, msg)

	if b.pn == nil {
		return
	}

	channel := fmt.Sprintf("event-%s", eventID)
	b.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":     msg.Type,
			"event_id": msg.EventID,
			"data":     msg.Data,
		}).
		Execute()
}
