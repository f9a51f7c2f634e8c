/*
natshandler.go Streams computed envelopes to downstream consumers over NATS,
one subject per node, plus the batch summary on a fixed subject.
*/

package natshandler

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ohowland/doe_core/internal/pkg/batch"
	"github.com/ohowland/doe_core/internal/pkg/envelope"
	"github.com/ohowland/doe_core/internal/pkg/msg"
)

const (
	envelopeSubjectPrefix = "doe.envelope."
	summarySubject        = "doe.summary"
)

// Handler publishes batch results to a NATS server.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	done   chan struct{}
	log    *zap.Logger
}

type config struct {
	Server string `json:"Server"`
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

// New subscribes a Handler to a batch publisher.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}

	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)

	chEnvelope, err := system.Subscribe(pid, msg.Envelope)
	if err != nil {
		return Handler{}, err
	}
	chSummary, err := system.Subscribe(pid, msg.Summary)
	if err != nil {
		return Handler{}, err
	}

	var redirects sync.WaitGroup
	redirects.Add(2)
	go func() { redirectMsg(chEnvelope, inbox); redirects.Done() }()
	go func() { redirectMsg(chSummary, inbox); redirects.Done() }()
	// the inbox closes once both subscriptions are closed and fully drained
	go func() { redirects.Wait(); close(inbox) }()

	return Handler{
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool),
		done:   make(chan struct{}),
		log:    zap.L().Named("nats"),
	}, nil
}

// PID returns the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Stop terminates the handler immediately, abandoning queued results.
func (h *Handler) Stop() {
	h.stop <- true
}

// Drain blocks until the handler has published everything queued in its inbox
// and exited. The caller unsubscribes the handler from its publisher first;
// that is what lets the inbox close.
func (h Handler) Drain() {
	<-h.done
}

// Process publishes subscribed results until its inbox is drained or it is
// stopped.
func (h Handler) Process() {
	defer close(h.done)

	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		h.log.Error("connect failed", zap.Error(err))
		return
	}
	defer nc.Close()

	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				h.log.Info("inbox drained, process shutdown")
				return
			}
			h.publish(nc, m)
		case <-h.stop:
			h.log.Info("process shutdown")
			return
		}
	}
}

func (h Handler) publish(nc *nats.Conn, m msg.Msg) {
	switch m.Topic() {
	case msg.Envelope:
		env, ok := m.Payload().(envelope.OperatingEnvelope)
		if !ok {
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		if err := nc.Publish(envelopeSubjectPrefix+env.NodeID, data); err != nil {
			h.log.Error("publish failed", zap.String("node", env.NodeID), zap.Error(err))
		}
	case msg.Summary:
		sum, ok := m.Payload().(batch.Summary)
		if !ok {
			return
		}
		data, err := json.Marshal(sum)
		if err != nil {
			return
		}
		if err := nc.Publish(summarySubject, data); err != nil {
			h.log.Error("summary publish failed", zap.Error(err))
		}
	}
}
