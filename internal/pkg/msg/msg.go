/*
msg.go Topic-filtered publish/subscribe used to fan calculation results out to
the datastream handlers. Subscribers receive on buffered channels; a slow
subscriber drops messages rather than stalling the publisher.
*/

package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic partitions the message stream.
type Topic int

// Constants of Topic
const (
	Envelope Topic = iota
	Summary
)

// Msg is an immutable message envelope.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function.
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID.
func (m Msg) PID() uuid.UUID {
	return m.sender
}

// Topic returns the message's topic.
func (m Msg) Topic() Topic {
	return m.topic
}

// Payload returns the message data.
func (m Msg) Payload() interface{} {
	return m.payload
}

// Publisher is an interface for objects that allow subscription to their events.
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

const subscriberBuffer = 50

// PubSub is a topic-filtered fanout owned by a single publisher.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	closed bool
	subs   map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub owned by the given pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.Mutex{},
		pid:  pid,
		subs: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID returns the owning publisher's PID.
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe registers a subscriber channel for a topic.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, errors.New("msg: publisher closed")
	}
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[uuid.UUID]chan Msg)
	}
	ch := make(chan Msg, subscriberBuffer)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Unsubscribe removes a subscriber from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic := range p.subs {
		if ch, ok := p.subs[topic][pid]; ok {
			close(ch)
			delete(p.subs[topic], pid)
		}
	}
}

// Publish delivers a payload to every subscriber of a topic. Full subscriber
// buffers drop the message for that subscriber.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	for _, ch := range p.subs[topic] {
		select {
		case ch <- New(p.pid, topic, payload):
		default:
		}
	}
}

// Close shuts the publisher down and closes every subscriber channel.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for topic := range p.subs {
		for pid, ch := range p.subs[topic] {
			close(ch)
			delete(p.subs[topic], pid)
		}
	}
}
