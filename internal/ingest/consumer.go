package ingest

import (
	"context"
	"log"
	"time"

	"activity-analytics/internal/contracts"
	"activity-analytics/internal/store"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Consumer drains console activity events off Kafka into user_logs, where
// the detection engines pick them up.
type Consumer struct {
	kafka *kgo.Client
	db    *store.Queries
}

func NewConsumer(kafka *kgo.Client, db *store.Queries) *Consumer {
	return &Consumer{kafka: kafka, db: db}
}

// Run polls until the context is cancelled. Offsets are committed in batches
// by a side loop so a slow insert never stalls the poll.
func (c *Consumer) Run(ctx context.Context) {
	commitChan := make(chan *kgo.Record, 1000)
	go c.commitLoop(ctx, commitChan)

	for {
		fetches := c.kafka.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Printf("Fetch error on %s/%d: %v", topic, partition, err)
		})

		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				record := record
				go func() {
					if err := c.ingest(ctx, record.Value); err != nil {
						log.Printf("Ingest error: %v", err)
						return
					}
					commitChan <- record
				}()
			}
		})
	}
}

func (c *Consumer) ingest(ctx context.Context, raw []byte) error {
	envelope, err := contracts.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	payload, err := envelope.UserActivityPayload()
	if err != nil {
		return err
	}

	params := LogParams(payload)
	if payload.UserID != 0 {
		if err := c.db.EnsureUserExists(ctx, int32(payload.UserID)); err != nil {
			return err
		}
	}

	_, err = c.db.InsertLog(ctx, params)
	return err
}

// LogParams maps an activity payload onto a user_logs insert. Anonymous
// events keep a NULL user_id.
func LogParams(payload contracts.UserActivityPayload) store.InsertLogParams {
	params := store.InsertLogParams{
		SessionID:  pgtype.Text{String: payload.SessionID, Valid: payload.SessionID != ""},
		ActionType: string(payload.Type),
		LogType:    pgtype.Text{String: "activity", Valid: true},
		Timestamp:  pgtype.Timestamptz{Time: payload.Timestamp.UTC(), Valid: true},
	}
	if payload.UserID != 0 {
		params.UserID = pgtype.Int4{Int32: int32(payload.UserID), Valid: true}
	}
	if payload.AgentInfo != "" {
		params.ActionDetail = pgtype.Text{String: payload.AgentInfo, Valid: true}
	}
	if ip, ok := payload.Additional["ip_address"].(string); ok && ip != "" {
		params.IpAddress = pgtype.Text{String: ip, Valid: true}
	}
	return params
}

func (c *Consumer) commitLoop(ctx context.Context, commitChan chan *kgo.Record) {
	var toCommit []*kgo.Record
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case record := <-commitChan:
			toCommit = append(toCommit, record)
		case <-ticker.C:
			if len(toCommit) > 0 {
				if err := c.kafka.CommitRecords(ctx, toCommit...); err != nil {
					log.Printf("Commit error: %v", err)
				}
				toCommit = nil
			}
		}
	}
}
