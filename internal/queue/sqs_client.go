package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DefaultRegion is used when no AWS region is configured.
const DefaultRegion = "us-east-1"

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient sends queue messages to AWS SQS.
type SQSClient struct {
	client   SQSAPI
	queueURL string
}

// NewSQSClient constructs an SQS-backed queue client.
func NewSQSClient(ctx context.Context, region, queueURL string) (*SQSClient, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("RA_SQS_QUEUE_URL is required")
	}
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewSQSClientWithAPI(sqs.NewFromConfig(cfg), queueURL), nil
}

// NewSQSClientWithAPI wraps an existing SQS client.
func NewSQSClientWithAPI(api SQSAPI, queueURL string) *SQSClient {
	return &SQSClient{client: api, queueURL: queueURL}
}

// LoadAWSConfig loads the default AWS credential chain for region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// Send delivers a message to the configured SQS queue.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
