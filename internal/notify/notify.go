package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// DefaultQueue receives finalized-report events
const DefaultQueue = "interview_reports"

// Publisher announces finalized reports to downstream consumers
type Publisher interface {
	PublishReport(ctx context.Context, report *models.Report) error
	Close() error
}

// ReportEvent is the message body published for a finalized report
type ReportEvent struct {
	InterviewID  string    `json:"interview_id"`
	AverageScore float64   `json:"average_score"`
	Decision     string    `json:"decision"`
	Questions    int       `json:"questions"`
	TimedOut     bool      `json:"timed_out"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// NewReportEvent summarizes a report for publication
func NewReportEvent(report *models.Report) ReportEvent {
	return ReportEvent{
		InterviewID:  report.InterviewID,
		AverageScore: report.AverageScore,
		Decision:     string(report.Decision),
		Questions:    len(report.Entries),
		TimedOut:     report.TimedOut,
		GeneratedAt:  report.GeneratedAt,
	}
}

// Nop discards every report
type Nop struct{}

// PublishReport drops the report
func (Nop) PublishReport(context.Context, *models.Report) error { return nil }

func (Nop) Close() error { return nil }

// RabbitMQ publishes report events to a durable queue
type RabbitMQ struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	timeout time.Duration
}

// NewRabbitMQ connects to the broker and declares the queue
func NewRabbitMQ(url, queue string) (*RabbitMQ, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: q, timeout: 5 * time.Second}, nil
}

// PublishReport sends the report event as persistent JSON
func (r *RabbitMQ) PublishReport(ctx context.Context, report *models.Report) error {
	body, err := json.Marshal(NewReportEvent(report))
	if err != nil {
		return fmt.Errorf("failed to encode report event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    report.InterviewID,
			Timestamp:    report.GeneratedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish report event: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}
