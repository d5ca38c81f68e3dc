package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentsched/unisched/model"
)

// RedisBus is a Transport backed by Redis Pub/Sub, one channel per
// registered address. Used when the negotiation spans more than one
// process; the in-process default remains InMemoryBus.
type RedisBus struct {
	client *redis.Client
	prefix string

	mu   sync.Mutex
	subs map[string]*redisSub
}

type redisSub struct {
	pubsub *redis.PubSub
	inbox  *Inbox
	cancel context.CancelFunc
}

// NewRedisBus connects to addr and verifies the connection with a
// bounded ping before returning.
func NewRedisBus(addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: redis ping failed: %w", err)
	}

	return &RedisBus{
		client: client,
		prefix: "unisched:agent:",
		subs:   make(map[string]*redisSub),
	}, nil
}

func (b *RedisBus) channelFor(address string) string {
	return b.prefix + address
}

func (b *RedisBus) Register(address string) (*Inbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[address]; ok {
		old.cancel()
		old.pubsub.Close()
		old.inbox.close()
		delete(b.subs, address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.channelFor(address))
	ib := newInbox(address, DefaultInboxCapacity)

	sub := &redisSub{pubsub: pubsub, inbox: ib, cancel: cancel}
	b.subs[address] = sub

	go sub.pump(ctx)
	return ib, nil
}

func (s *redisSub) pump(ctx context.Context) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			msg, err := decodeMessage(raw.Payload)
			if err != nil {
				log.Printf("[BUS] dropping malformed message on %s: %v", raw.Channel, err)
				continue
			}
			select {
			case s.inbox.ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *RedisBus) Deregister(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[address]; ok {
		sub.cancel()
		sub.pubsub.Close()
		sub.inbox.close()
		delete(b.subs, address)
	}
}

func (b *RedisBus) Send(ctx context.Context, msg model.Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("bus: encode message: %w", err)
	}
	return b.client.Publish(ctx, b.channelFor(msg.To), payload).Err()
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for addr, sub := range b.subs {
		sub.cancel()
		sub.pubsub.Close()
		sub.inbox.close()
		delete(b.subs, addr)
	}
	return b.client.Close()
}

// wireMessage is the JSON-friendly encoding of model.Message: Body is
// kept as a raw payload and redecoded into the concrete type implied by
// Performative, since Go's encoding/json can't round-trip an interface{}
// field on its own.
type wireMessage struct {
	ID             string            `json:"id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Performative   model.Performative `json:"performative"`
	Protocol       model.Protocol     `json:"protocol"`
	Ontology       model.Ontology     `json:"ontology"`
	ConversationID string            `json:"conversation_id"`
	CorrelationID  string            `json:"correlation_id"`
	Metadata       map[string]string `json:"metadata"`
	Body           json.RawMessage   `json:"body"`
}

func encodeMessage(msg model.Message) ([]byte, error) {
	bodyRaw, err := json.Marshal(msg.Body)
	if err != nil {
		return nil, err
	}
	w := wireMessage{
		ID:             msg.ID,
		From:           msg.From,
		To:             msg.To,
		Performative:   msg.Performative,
		Protocol:       msg.Protocol,
		Ontology:       msg.Ontology,
		ConversationID: msg.ConversationID,
		CorrelationID:  msg.CorrelationID,
		Metadata:       msg.Metadata,
		Body:           bodyRaw,
	}
	return json.Marshal(w)
}

func decodeMessage(payload string) (model.Message, error) {
	var w wireMessage
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return model.Message{}, err
	}

	body, err := decodeBody(w.Performative, w.Body)
	if err != nil {
		return model.Message{}, err
	}

	return model.Message{
		ID:             w.ID,
		From:           w.From,
		To:             w.To,
		Performative:   w.Performative,
		Protocol:       w.Protocol,
		Ontology:       w.Ontology,
		ConversationID: w.ConversationID,
		CorrelationID:  w.CorrelationID,
		Metadata:       w.Metadata,
		Body:           body,
	}, nil
}

func decodeBody(perf model.Performative, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var err error
	switch perf {
	case model.CFP:
		var b model.CFPBody
		err = json.Unmarshal(raw, &b)
		return b, err
	case model.Propose:
		var b model.ClassroomAvailability
		err = json.Unmarshal(raw, &b)
		return b, err
	case model.AcceptProposal:
		var b model.BatchAssignmentRequest
		err = json.Unmarshal(raw, &b)
		return b, err
	case model.Inform:
		if raw[0] == '"' {
			// turn handoff and shutdown INFORMs carry a plain string body
			var s string
			err = json.Unmarshal(raw, &s)
			return s, err
		}
		var b model.BatchAssignmentConfirmation
		err = json.Unmarshal(raw, &b)
		return b, err
	default:
		var generic map[string]interface{}
		err = json.Unmarshal(raw, &generic)
		return generic, err
	}
}
