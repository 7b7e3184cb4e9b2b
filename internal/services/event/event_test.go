package event

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/broker/brokertest"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeWriteAPI struct {
	api.WriteAPIBlocking

	mu     sync.Mutex
	err    error
	points []*write.Point
}

func (f *fakeWriteAPI) WritePoint(_ context.Context, p ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, p...)
	return nil
}

func alertEvent() messages.AlertEvent {
	return messages.AlertEvent{
		ID:        "a1",
		Class:     entities.AlertMoisture,
		Severity:  entities.SeverityWarning,
		SensorID:  "basil",
		Message:   "moisture (basil) warning: moisture low (20)",
		Timestamp: t0,
	}
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestEventToPoint(t *testing.T) {
	m := 21.5
	p := EventToPoint(FromDecision(messages.IrrigationDecisionEvent{
		Pump: "pump1", TicketID: "t1", SensorID: "basil", Mode: entities.RunAuto,
		Moisture: &m, Duration: 2 * time.Minute, Reason: "moisture low", Timestamp: t0,
	}))
	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, t0, p.Time())
	tags := tagMap(p)
	assert.Equal(t, TypeDecision, tags["event_type"])
	assert.Equal(t, "pump1", tags["pump"])
	assert.Equal(t, "basil", tags["sensor_id"])
	assert.NotContains(t, tags, "class")
	fields := fieldMap(p)
	assert.Equal(t, 120.0, fields["duration_s"])
	assert.Equal(t, 21.5, fields["moisture"])
	assert.Equal(t, int64(1), fields["count"])

	res := FromResult(messages.IrrigationResultEvent{
		Pump: "pump1", Status: messages.ResultFail, Reason: "relay", Timestamp: t0,
	})
	assert.Equal(t, "warning", res.Severity)
	assert.Equal(t, "FAIL: relay", res.Fields["message"])
}

func TestWriter(t *testing.T) {
	fw := &fakeWriteAPI{}
	w := NewWriter(fw, breaker.New("influx", 2, time.Hour))
	w.now = func() time.Time { return t0 }

	require.NoError(t, w.Alert(context.Background(), alertEvent()))
	require.NoError(t, w.Result(context.Background(), messages.IrrigationResultEvent{Pump: "pump1", Status: messages.ResultOK, Timestamp: t0}))
	require.NoError(t, w.Report(context.Background(), messages.CycleReport{}))
	assert.Len(t, fw.points, 2)
	assert.Equal(t, int64(1), w.Count(TypeAlert))
	assert.Equal(t, int64(1), w.Count(TypeResult))

	fw.err = errors.New("influx down")
	require.Error(t, w.Alert(context.Background(), alertEvent()))
	assert.Equal(t, time.Duration(0), w.LastErrorAge())
	require.Error(t, w.Alert(context.Background(), alertEvent()))

	// breaker open: the API is no longer called
	fw.err = nil
	err := w.Alert(context.Background(), alertEvent())
	require.Error(t, err)
	assert.True(t, breaker.IsOpen(err))
	assert.Len(t, fw.points, 2)
}

type fakeSender struct {
	bodies []string
	titles []string
	errs   []error
}

func (f *fakeSender) Send(body string, p *stypes.Params) []error {
	f.bodies = append(f.bodies, body)
	title, _ := p.Title()
	f.titles = append(f.titles, title)
	return f.errs
}

func TestNotifier(t *testing.T) {
	fs := &fakeSender{}
	n := newNotifier(fs, breaker.New("notify", 3, time.Minute))

	require.NoError(t, n.Alert(context.Background(), alertEvent()))
	require.NoError(t, n.Decision(context.Background(), messages.IrrigationDecisionEvent{}))
	assert.Equal(t, []string{"moisture (basil) warning: moisture low (20)"}, fs.bodies)
	assert.Equal(t, []string{"flora: moisture"}, fs.titles)

	fs.errs = []error{nil, errors.New("telegram: 502")}
	err := n.Alert(context.Background(), alertEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: 502")
}

func TestNewNotifier_NoURLs(t *testing.T) {
	_, err := NewNotifier(nil, time.Second, breaker.New("notify", 1, time.Second))
	assert.Error(t, err)
}

type failingSink struct{ Nop }

func (failingSink) Alert(context.Context, messages.AlertEvent) error { return errors.New("nope") }

func TestFanout(t *testing.T) {
	rec := &Recorder{}
	f := Fanout{failingSink{}, nil, rec}

	err := f.Alert(context.Background(), alertEvent())
	assert.EqualError(t, err, "nope")
	require.NoError(t, f.Report(context.Background(), messages.CycleReport{Timestamp: t0}))
	assert.Len(t, rec.Alerts, 1, "a failing sink does not stop delivery")
	assert.Len(t, rec.Reports, 1)
}

func TestMQTTSink(t *testing.T) {
	c := brokertest.NewClient()
	s := NewMQTTSink(broker.NewPublisher(c, "", 1, false), "flora/")

	report := messages.CycleReport{
		Timestamp:      t0,
		Tank:           entities.TankStatus{Low: true},
		AutoIrrigation: true,
		ManualDuration: 90 * time.Second,
		Sensors:        []messages.SensorReport{{Sensor: "basil", Plant: "Basil", Valid: true}},
		Pumps:          []entities.IrrigationState{{Pump: "pump1", IsRunning: true, Mode: entities.RunManual}},
	}
	require.NoError(t, s.Report(context.Background(), report))
	require.NoError(t, s.Alert(context.Background(), alertEvent()))
	require.NoError(t, s.SetStatus(StatusOnline))

	expect := map[string]string{
		"flora/tank":                  "1",
		"flora/auto_irr_stat":         "1",
		"flora/man_irr_stat":          "1",
		"flora/man_irr_duration_stat": "90",
		"flora/status":                "online",
	}
	for topic, payload := range expect {
		got, ok := c.Last(topic)
		require.True(t, ok, topic)
		assert.Equal(t, payload, string(got.Payload), topic)
	}
	st, _ := c.Last("flora/status")
	assert.True(t, st.Retain)

	sensor, ok := c.Last("flora/basil")
	require.True(t, ok)
	var sr messages.SensorReport
	require.NoError(t, json.Unmarshal(sensor.Payload, &sr))
	assert.Equal(t, "Basil", sr.Plant)

	alert, ok := c.Last("flora/alert")
	require.True(t, ok)
	assert.Contains(t, string(alert.Payload), `"class":"moisture"`)

	c.PublishErr = errors.New("broker down")
	assert.Error(t, s.Report(context.Background(), report))
}

type fakeMQTT struct {
	brokertest.Client
	open bool
}

func (f *fakeMQTT) IsConnectionOpen() bool { return f.open }

func TestHealthHandlers(t *testing.T) {
	last := t0
	p := Probes{
		MQTT:        &fakeMQTT{open: true},
		LastCycle:   func() time.Time { return last },
		MaxCycleAge: 10 * time.Minute,
		Now:         func() time.Time { return t0.Add(time.Minute) },
	}

	get := func(h http.Handler) (*httptest.ResponseRecorder, map[string]any) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return rr, body
	}

	_, body := get(NewHealthHandler(p))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 60.0, body["last_cycle_age_sec"])
	rr, _ := get(NewReadyHandler(p, time.Second))
	assert.Equal(t, http.StatusOK, rr.Code)

	p.MQTT = &fakeMQTT{open: false}
	_, body = get(NewHealthHandler(p))
	assert.Equal(t, "degraded", body["status"])
	rr, body = get(NewReadyHandler(p, time.Second))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, body["ready"])

	last = time.Time{}
	_, body = get(NewHealthHandler(p))
	assert.Equal(t, "down", body["status"])
}

func TestParseQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/events/latest?limit=9999&minutes=0&type=alert", nil)
	p := parseQuery(r, 1440, 20, 2000)
	assert.Equal(t, 500, p.Limit)
	assert.Equal(t, 1, p.Minutes)
	assert.Equal(t, TypeAlert, p.Type)

	r = httptest.NewRequest(http.MethodGet, "/events/latest?type=bogus", nil)
	p = parseQuery(r, 1440, 20, 2000)
	assert.Equal(t, "", p.Type)
	assert.Equal(t, 20, p.Limit)
	assert.NotContains(t, buildFlux("flora", p), "event_type ==")
	assert.Contains(t, buildFlux("flora", queryParams{Type: TypeResult, Minutes: 5, Limit: 3}), `r.event_type == "irrigation.result"`)
}

func TestConsumer_ReplaysControllerEvents(t *testing.T) {
	c := brokertest.NewClient()
	rec := &Recorder{}
	cons := NewConsumer("flora", rec, dedup.New(time.Minute, 100))
	mc := broker.NewMultiConsumer(c, cons.Filters(), 1, cons.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mc.ConsumeMessage(ctx)
		close(done)
	}()
	<-mc.Ready()

	sink := NewMQTTSink(broker.NewPublisher(c, "", 1, false), "flora")
	decision := messages.IrrigationDecisionEvent{Pump: "pump1", TicketID: "t1", Mode: entities.RunAuto, Duration: 2 * time.Minute, Reason: "dry", Timestamp: t0}
	require.NoError(t, sink.Alert(context.Background(), alertEvent()))
	require.NoError(t, sink.Decision(context.Background(), decision))
	require.NoError(t, sink.Decision(context.Background(), decision))
	require.NoError(t, sink.Result(context.Background(), messages.IrrigationResultEvent{Pump: "pump1", TicketID: "t1", Status: "OK", Timestamp: t0}))
	require.NoError(t, sink.Report(context.Background(), messages.CycleReport{Timestamp: t0, AutoIrrigation: true}))

	require.Len(t, rec.Alerts, 1)
	assert.Equal(t, entities.SeverityWarning, rec.Alerts[0].Severity)
	assert.Equal(t, "basil", rec.Alerts[0].SensorID)
	require.Len(t, rec.Decisions, 1, "redelivered decision dropped")
	assert.Equal(t, 2*time.Minute, rec.Decisions[0].Duration)
	require.Len(t, rec.Results, 1)
	assert.Equal(t, "t1", rec.Results[0].TicketID)
	require.Len(t, rec.Reports, 1)
	assert.True(t, rec.Reports[0].AutoIrrigation)

	c.Deliver("flora/alert", []byte("{"))
	assert.Len(t, rec.Alerts, 1)
	assert.Error(t, cons.Handle("flora/alert", &brokertest.Message{TopicName: "flora/alert", Body: []byte("{")}))
	assert.NoError(t, cons.Handle("flora/report", &brokertest.Message{TopicName: "flora/report", Body: []byte("{}"), RetainFlag: true}))
	assert.Len(t, rec.Reports, 1, "retained reports are history, not news")

	cancel()
	<-done
}
