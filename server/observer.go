package server

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/sirupsen/logrus"
)

// metricNamespace is the namespace custom metrics are published under.
const metricNamespace = "MyApp/API"

// Metric units accepted by the telemetry backend.
const (
	UnitCount        = "Count"
	UnitMilliseconds = "Milliseconds"
)

// Observer receives log events and metrics from the router at defined
// extension points. Both calls are fire-and-forget: implementations must
// never block or fail the request that emitted them.
type Observer interface {
	Event(level, message string, fields map[string]interface{})
	Metric(name string, value float64, unit string, dimensions map[string]string)
}

// LogObserver writes events and metrics to a structured logger.
type LogObserver struct {
	logger *logrus.Logger
}

// NewLogObserver creates a log-backed observer with JSON output.
func NewLogObserver(level string) *LogObserver {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return &LogObserver{logger: logger}
}

// Logger exposes the underlying logger for components that log directly.
func (o *LogObserver) Logger() *logrus.Logger {
	return o.logger
}

// Event logs a structured event at the given level.
func (o *LogObserver) Event(level, message string, fields map[string]interface{}) {
	entry := o.logger.WithFields(logrus.Fields(fields))
	switch level {
	case "error":
		entry.Error(message)
	case "warn":
		entry.Warn(message)
	case "debug":
		entry.Debug(message)
	default:
		entry.Info(message)
	}
}

// Metric logs the metric instead of shipping it anywhere.
func (o *LogObserver) Metric(name string, value float64, unit string, dimensions map[string]string) {
	o.logger.WithFields(logrus.Fields{
		"metricName": name,
		"value":      value,
		"unit":       unit,
		"dimensions": dimensions,
	}).Debug("metric")
}

// CloudWatchObserver publishes metrics to CloudWatch. Events are not its
// concern; pair it with a LogObserver.
type CloudWatchObserver struct {
	client *cloudwatch.CloudWatch
	logger *logrus.Logger
}

// NewCloudWatchObserver creates a CloudWatch-backed metric observer.
func NewCloudWatchObserver(sess *session.Session, logger *logrus.Logger) *CloudWatchObserver {
	return &CloudWatchObserver{
		client: cloudwatch.New(sess),
		logger: logger,
	}
}

// Event does nothing.
func (o *CloudWatchObserver) Event(level, message string, fields map[string]interface{}) {}

// Metric ships the datapoint in the background. Failures are logged and
// swallowed so telemetry can never delay or fail a response.
func (o *CloudWatchObserver) Metric(name string, value float64, unit string, dimensions map[string]string) {
	dims := make([]*cloudwatch.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, &cloudwatch.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}
	datum := &cloudwatch.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       aws.String(unit),
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dims,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := o.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(metricNamespace),
			MetricData: []*cloudwatch.MetricDatum{datum},
		})
		if err != nil && o.logger != nil {
			o.logger.WithFields(logrus.Fields{
				"metricName": name,
				"error":      err.Error(),
			}).Error("Failed to put custom metric")
		}
	}()
}

// multiObserver fans out to several observers.
type multiObserver struct {
	observers []Observer
}

// NewMultiObserver combines observers into one.
func NewMultiObserver(observers ...Observer) Observer {
	return &multiObserver{observers: observers}
}

func (m *multiObserver) Event(level, message string, fields map[string]interface{}) {
	for _, o := range m.observers {
		o.Event(level, message, fields)
	}
}

func (m *multiObserver) Metric(name string, value float64, unit string, dimensions map[string]string) {
	for _, o := range m.observers {
		o.Metric(name, value, unit, dimensions)
	}
}

// NoOpObserver discards everything.
type NoOpObserver struct{}

func (NoOpObserver) Event(level, message string, fields map[string]interface{})              {}
func (NoOpObserver) Metric(name string, value float64, unit string, dims map[string]string) {}
