package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/ocppfleet/core/mqtt"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/infra/logger"
	"github.com/kilianp07/ocppfleet/infra/mqtt"
)

// Bridge plays a set of charge points on an MQTT broker. It answers calls
// published on their request topics through a Responder.
type Bridge struct {
	cli       paho.Client
	topics    coremqtt.Topics
	responder Responder
	ids       map[string]struct{}
	logger    logger.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	handled int
}

// NewBridge returns a bridge for chargeBoxIDs. cli must be connected.
func NewBridge(cli paho.Client, topics coremqtt.Topics, r Responder, chargeBoxIDs []string) *Bridge {
	if r == nil {
		r = Accept
	}
	ids := make(map[string]struct{}, len(chargeBoxIDs))
	for _, id := range chargeBoxIDs {
		ids[id] = struct{}{}
	}
	return &Bridge{
		cli:       cli,
		topics:    topics.WithDefaults(),
		responder: r,
		ids:       ids,
		logger:    logger.New("cp_simulator"),
	}
}

// Serve subscribes to the request topics and answers until ctx is done.
func (b *Bridge) Serve(ctx context.Context) error {
	filter := b.topics.RequestTopic("+")
	if token := b.cli.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		b.onCall(ctx, msg)
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", filter, token.Error())
	}
	b.logger.Infof("simulating %d charge points on %s", len(b.ids), filter)
	<-ctx.Done()
	if token := b.cli.Unsubscribe(filter); token.WaitTimeout(time.Second) && token.Error() != nil {
		b.logger.Warnf("unsubscribe %s: %v", filter, token.Error())
	}
	b.wg.Wait()
	return nil
}

// Handled returns the number of calls received for simulated charge points.
func (b *Bridge) Handled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handled
}

func (b *Bridge) chargeBoxID(topic string) (string, bool) {
	id, ok := b.topics.RequestChargeBoxID(topic)
	if !ok {
		return "", false
	}
	_, known := b.ids[id]
	return id, known
}

func (b *Bridge) onCall(ctx context.Context, msg paho.Message) {
	id, ok := b.chargeBoxID(msg.Topic())
	if !ok {
		return
	}
	f, err := mqtt.DecodeFrame(msg.Payload())
	if err != nil || f.Type != mqtt.MessageCall {
		b.logger.Warnf("%s: ignoring message: %v", id, err)
		return
	}
	b.mu.Lock()
	b.handled++
	b.mu.Unlock()

	reply := b.responder.Reply(id, ocpp.Action(f.Action))
	if reply.Drop || reply.Err != nil {
		b.logger.Debugf("%s: dropping %s %s", id, f.Action, f.UniqueID)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if reply.Delay > 0 {
			select {
			case <-time.After(reply.Delay):
			case <-ctx.Done():
				return
			}
		}
		b.publish(id, f.UniqueID, reply)
	}()
}

func (b *Bridge) publish(id, uniqueID string, reply Reply) {
	var (
		payload []byte
		err     error
	)
	if reply.FaultCode != "" {
		payload, err = mqtt.EncodeCallError(uniqueID, reply.FaultCode, reply.FaultMessage)
	} else {
		payload, err = mqtt.EncodeCallResult(uniqueID, reply.Result)
	}
	if err != nil {
		b.logger.Errorf("%s: encode reply: %v", id, err)
		return
	}
	token := b.cli.Publish(b.topics.ResponseTopic(id), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		b.logger.Errorf("reply publish timeout for %s", id)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Errorf("publish reply for %s: %v", id, err)
	}
}
