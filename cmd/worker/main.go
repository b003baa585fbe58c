package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"contract-analyzer/internal/bootstrap"
	"contract-analyzer/internal/queue"
	"contract-analyzer/internal/shared/config"
	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/telemetry"
	"contract-analyzer/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 300
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	defer telemetry.Sync()

	queueURL := strings.TrimSpace(cfg.SQSQueueURL)
	if queueURL == "" {
		log.Fatal("RA_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("RA_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := cfg.WorkerConcurrency
	shutdownTimeout := time.Duration(envInt("RA_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := queue.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.BuildWorker(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()
	var processor workerproc.Processor = app.AnalysesService

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncAnalysisJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, processor, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage runs one queued analysis. Messages that can never succeed are
// deleted; processing failures are left for redelivery after the visibility
// timeout.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor workerproc.Processor, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	if strings.TrimSpace(body) == "" {
		fields := baseFields(msg, "", "")
		fields["body_len"] = 0
		dropUnrecoverable(ctx, client, queueURL, msg, "worker.analysis.empty_body", fields)
		return
	}

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		var missing workerproc.ErrMissingAnalysisID
		isMissing := errors.As(err, &missing)
		fields := baseFields(msg, "", missing.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		event := "worker.analysis.missing_id"
		if !isMissing {
			event = "worker.analysis.decode_failed"
			fields["error"] = err.Error()
		}
		dropUnrecoverable(ctx, client, queueURL, msg, event, fields)
		return
	}

	received := baseFields(msg, decoded.AnalysisID, decoded.RequestID)
	if decoded.DocumentID != "" {
		received["document_id"] = decoded.DocumentID
	}
	if at := decoded.EnqueuedTime(); !at.IsZero() {
		received["queue_wait_ms"] = time.Since(at).Milliseconds()
	}
	telemetry.Info("worker.analysis.received", received)

	if err := workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), processor, body); err != nil {
		analysisID, requestID, cause := decoded.AnalysisID, decoded.RequestID, err
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) {
			analysisID, requestID = procErr.AnalysisID, procErr.RequestID
			if procErr.Err != nil {
				cause = procErr.Err
			}
		}
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = cause.Error()
		telemetry.Error("worker.analysis.failed", fields)
		metrics.IncAnalysisJobsFailed()
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.AnalysisID, decoded.RequestID) {
		telemetry.Info("worker.analysis.completed", baseFields(msg, decoded.AnalysisID, decoded.RequestID))
		metrics.IncAnalysisJobsCompleted()
	}
}

func dropUnrecoverable(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, event string, fields map[string]any) {
	telemetry.Error(event, fields)
	requestID, _ := fields["request_id"].(string)
	if deleteMessage(ctx, client, queueURL, msg, "", requestID) {
		metrics.IncAnalysisJobsDeletedUnrecoverable()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, analysisID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.analysis.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.analysis.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, analysisID, requestID string) map[string]any {
	fields := map[string]any{
		"analysis_id":    analysisID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}
