// Package metrics publishes API and worker telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bannerly/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	metricRequestCount   = "RequestCount"
	metricRequestLatency = "RequestLatency"
	metricPostProcessed  = "PostProcessed"

	dimMethod   = "Method"
	dimEndpoint = "Endpoint"
	dimStatus   = "Status"
	dimOutcome  = "Outcome"
)

// Collector emits Bannerly metrics to a CloudWatch namespace. Publication
// failures are logged and never propagate; metrics are best-effort.
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCollector creates a Collector publishing to the given namespace.
func NewCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *Collector {
	if namespace == "" {
		namespace = "Bannerly"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits request count and latency with Method, Endpoint, and
// Status dimensions. Called from the HTTP metrics middleware, so it must
// not block the response path on CloudWatch; publication uses a short
// detached context.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dims := []cwtypes.Dimension{
		{Name: aws.String(dimMethod), Value: aws.String(method)},
		{Name: aws.String(dimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(dimStatus), Value: aws.String(status)},
	}

	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(metricRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(metricRequestLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	})
}

// RecordPostProcessed emits one PostProcessed count with the terminal
// outcome as a dimension. Satisfies the scheduler's Metrics interface.
func (c *Collector) RecordPostProcessed(ctx context.Context, outcome types.PostStatus) {
	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(metricPostProcessed),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(dimOutcome), Value: aws.String(string(outcome))},
			},
		},
	})
}

func (c *Collector) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to publish metrics",
			"namespace", c.namespace,
			"error", err,
		)
	}
}
