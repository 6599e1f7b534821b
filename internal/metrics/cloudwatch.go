package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "Melody/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Client wraps CloudWatch client for custom metrics
type Client struct {
	api         putMetricDataAPI
	enabled     bool
	environment string

	wg sync.WaitGroup
}

// NewClient creates a new CloudWatch metrics client. Metrics are only sent in
// production.
func NewClient(ctx context.Context, environment string) (*Client, error) {
	if environment != "production" {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{enabled: false, environment: environment}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false, environment: environment}, nil
	}

	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)
	return newClientWithAPI(cloudwatch.NewFromConfig(cfg), environment), nil
}

func newClientWithAPI(api putMetricDataAPI, environment string) *Client {
	return &Client{api: api, enabled: true, environment: environment}
}

// Enabled reports whether metrics are being sent
func (m *Client) Enabled() bool {
	return m.enabled
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	metricName := "APIRequests"
	if statusCode >= httpStatusServerError {
		metricName = "APIErrors"
	}
	dimensions := []types.Dimension{
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Environment"), Value: aws.String(m.environment)},
	}

	m.send(
		types.MetricDatum{MetricName: aws.String(metricName), Value: aws.Float64(1), Unit: types.StandardUnitCount, Dimensions: dimensions},
		types.MetricDatum{MetricName: aws.String("APILatency"), Value: aws.Float64(float64(duration.Milliseconds())), Unit: types.StandardUnitMilliseconds, Dimensions: dimensions},
	)
}

// RecordGeneration records duration and size of a generation
func (m *Client) RecordGeneration(_ context.Context, stats GenerationStats) {
	if !m.enabled {
		return
	}

	dimensions := []types.Dimension{
		{Name: aws.String("Success"), Value: aws.String(boolToString(stats.Success))},
		{Name: aws.String("Environment"), Value: aws.String(m.environment)},
	}
	modelDimensions := []types.Dimension{
		{Name: aws.String("Model"), Value: aws.String(stats.Model)},
		{Name: aws.String("Environment"), Value: aws.String(m.environment)},
	}

	data := []types.MetricDatum{
		{MetricName: aws.String("GenerationDuration"), Value: aws.Float64(float64(stats.Duration.Milliseconds())), Unit: types.StandardUnitMilliseconds, Dimensions: dimensions},
	}
	if stats.Success {
		data = append(data,
			types.MetricDatum{MetricName: aws.String("GeneratedSteps"), Value: aws.Float64(float64(stats.Steps)), Unit: types.StandardUnitCount, Dimensions: modelDimensions},
			types.MetricDatum{MetricName: aws.String("GeneratedEvents"), Value: aws.Float64(float64(stats.Events)), Unit: types.StandardUnitCount, Dimensions: modelDimensions},
		)
		if stats.DroppedEvents > 0 {
			data = append(data, types.MetricDatum{MetricName: aws.String("DroppedTrailingNotes"), Value: aws.Float64(float64(stats.DroppedEvents)), Unit: types.StandardUnitCount, Dimensions: modelDimensions})
		}
	}

	m.send(data...)
}

// Wait blocks until queued metrics have been sent
func (m *Client) Wait() {
	m.wg.Wait()
}

// send puts metrics asynchronously so requests never wait on CloudWatch
func (m *Client) send(data ...types.MetricDatum) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.putMetrics(data); err != nil {
			log.Printf("Failed to record %d metrics: %v", len(data), err)
		}
	}()
}

func (m *Client) putMetrics(data []types.MetricDatum) error {
	if !m.enabled || m.api == nil {
		return nil
	}

	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	now := time.Now()
	for i := range data {
		data[i].Timestamp = aws.Time(now)
	}

	_, err := m.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: data,
	})
	return err
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
