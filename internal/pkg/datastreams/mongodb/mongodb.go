/*
mongodb.go Envelope history store. Subscribes to a batch publisher and writes
each operating envelope keyed by (node id, calculation time), plus the batch
summary, for audit and dashboard history.
*/

package mongodb

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ohowland/doe_core/internal/pkg/batch"
	"github.com/ohowland/doe_core/internal/pkg/envelope"
	"github.com/ohowland/doe_core/internal/pkg/msg"
)

const (
	envelopeCollection = "envelopeHistory"
	summaryCollection  = "batchSummary"
)

// Handler drains batch results into MongoDB.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	done   chan struct{}
	log    *zap.Logger
}

type config struct {
	URI      string `json:"URI"`
	Database string `json:"Database"`
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
		log:    zap.L().Named("mongo"),
	}, nil
}

// PID returns the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// StopProcess terminates the handler immediately, abandoning queued results.
func (h *Handler) StopProcess() {
	h.stop <- true
}

// Drain blocks until the handler has written everything queued in its inbox
// and exited. The caller unsubscribes the handler from its publisher first;
// that is what lets the inbox close.
func (h Handler) Drain() {
	<-h.done
}

// Process writes subscribed results until its inbox is drained or it is
// stopped.
func (h Handler) Process() {
	defer close(h.done)

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(h.config.URI))
	if err != nil {
		h.log.Error("connect failed", zap.Error(err))
		return
	}
	defer func() { _ = client.Disconnect(ctx) }()

	db := client.Database(h.config.Database)
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				h.log.Info("inbox drained, process shutdown")
				return
			}
			h.write(ctx, db, m)
		case <-h.stop:
			h.log.Info("process shutdown")
			return
		}
	}
}

func (h Handler) write(ctx context.Context, db *mongo.Database, m msg.Msg) {
	switch m.Topic() {
	case msg.Envelope:
		env, ok := m.Payload().(envelope.OperatingEnvelope)
		if !ok {
			return
		}
		opts := options.Update().SetUpsert(true)
		_, err := db.Collection(envelopeCollection).UpdateOne(
			ctx,
			bson.M{"nodeId": env.NodeID, "calculatedAt": env.CalculatedAt},
			bson.M{"$set": env},
			opts,
		)
		if err != nil {
			h.log.Error("envelope upsert failed", zap.String("node", env.NodeID), zap.Error(err))
		}
	case msg.Summary:
		sum, ok := m.Payload().(batch.Summary)
		if !ok {
			return
		}
		if _, err := db.Collection(summaryCollection).InsertOne(ctx, sum); err != nil {
			h.log.Error("summary insert failed", zap.Error(err))
		}
	}
}
