package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/ocppfleet/core/metrics"
	"github.com/kilianp07/ocppfleet/infra/logger"
)

// InfluxSink writes call outcomes and operation summaries to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
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

// RecordOutcome writes one ocpp_call_outcome point.
func (s *InfluxSink) RecordOutcome(rec coremetrics.OutcomeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ocpp_call_outcome").
		AddTag("task_id", rec.TaskID).
		AddTag("action", rec.Action).
		AddTag("charge_box_id", rec.ChargeBoxID).
		AddTag("outcome", rec.Outcome)
	if rec.FaultCode != "" {
		p = p.AddTag("fault_code", rec.FaultCode)
	}
	p = p.AddField("latency_ms", round3(rec.Latency.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOperation writes one ocpp_operation point with a field per outcome.
func (s *InfluxSink) RecordOperation(rec coremetrics.OperationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ocpp_operation").
		AddTag("task_id", rec.TaskID).
		AddTag("action", rec.Action).
		AddField("targets", rec.Targets).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000))
	for outcome, n := range rec.Counts {
		p = p.AddField(outcome, n)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(rec.Time))
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
