package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridcourier/core/metrics"
	"github.com/kilianp07/gridcourier/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes an order_assigned point.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("order_assigned").
		AddTag("courier_id", ev.CourierID).
		AddTag("transport", ev.Transport).
		AddTag("manual", strconv.FormatBool(ev.Manual)).
		AddField("order_id", ev.OrderID).
		AddField("distance", round3(ev.Distance)).
		AddField("weight", round3(ev.Weight)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordQueue writes a backlog_change point.
func (s *InfluxSink) RecordQueue(ev coremetrics.QueueEvent) error {
	p := write.NewPointWithMeasurement("backlog_change").
		AddTag("action", ev.Action)
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("order_id", ev.OrderID).
		AddField("size", ev.Size).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCompletion writes an order_delivered point.
func (s *InfluxSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	p := write.NewPointWithMeasurement("order_delivered").
		AddTag("courier_id", ev.CourierID).
		AddField("order_id", ev.OrderID).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordViolation writes an sla_violation point.
func (s *InfluxSink) RecordViolation(ev coremetrics.ViolationEvent) error {
	p := write.NewPointWithMeasurement("sla_violation").
		AddTag("kind", ev.Kind).
		AddField("order_id", ev.OrderID).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		AddField("threshold_s", round3(ev.Threshold.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCourierStatus writes a courier_status point.
func (s *InfluxSink) RecordCourierStatus(ev coremetrics.CourierStatusEvent) error {
	p := write.NewPointWithMeasurement("courier_status").
		AddTag("courier_id", ev.CourierID).
		AddTag("transport", ev.Transport).
		AddField("status", ev.Status).
		AddField("previous", ev.Previous).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
