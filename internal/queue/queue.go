// Package queue provides the processing job queue. The default backend is a
// Redis list; a RabbitMQ backend is available for deployments that already
// run a broker.
package queue

import (
	"context"
	"time"
)

// JobTypeOCR is the only job type the worker understands. Unknown types are
// logged and discarded by the consumer.
const JobTypeOCR = "ocr"

// Job is the opaque queue message referencing a document. Delivery is
// at-most-once by intent, but consumers must tolerate redelivery.
type Job struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
}

// Queue is the job transport consumed and fed by the worker. Dequeue blocks
// for at most timeout and returns (nil, nil) when no job arrived.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Enqueue(ctx context.Context, job Job) error
}
