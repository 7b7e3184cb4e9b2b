package irrigation_controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/services/device"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/broker/brokertest"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

func TestInbox(t *testing.T) {
	in := NewInbox()
	in.Submit(messages.ControlRequest{Kind: messages.ControlAutoIrrigation})
	in.Submit(messages.ControlRequest{Kind: messages.ControlManualDuration})

	select {
	case <-in.Wake():
	default:
		t.Fatal("submit must wake the loop")
	}
	select {
	case <-in.Wake():
		t.Fatal("wake is coalesced")
	default:
	}

	got := in.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, messages.ControlAutoIrrigation, got[0].Kind)
	assert.Empty(t, in.Drain())
}

func TestControl_Topics(t *testing.T) {
	in := NewInbox()
	c := NewControl("flora", in, dedup.New(time.Minute, 100))
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	tests := []struct {
		topic   string
		payload string
		want    messages.ControlRequest
		wantErr bool
	}{
		{"flora/man_irr_cmd", "2", messages.ControlRequest{Kind: messages.ControlManualIrrigation, Pump: "2"}, false},
		{"flora/man_irr_cmd", `{"pump":"pump1","duration":45}`, messages.ControlRequest{Kind: messages.ControlManualIrrigation, Pump: "pump1", Duration: 45 * time.Second}, false},
		{"flora/man_irr_cmd", `{"pump":1}`, messages.ControlRequest{Kind: messages.ControlManualIrrigation, Pump: "1"}, false},
		{"flora/man_irr_cmd", "", messages.ControlRequest{}, true},
		{"flora/man_irr_cmd", `{"duration":45}`, messages.ControlRequest{}, true},
		{"flora/man_irr_duration_ctrl", "65", messages.ControlRequest{Kind: messages.ControlManualDuration, Duration: 65 * time.Second}, false},
		{"flora/man_irr_duration_ctrl", "-3", messages.ControlRequest{}, true},
		{"flora/auto_irr_ctrl", "0", messages.ControlRequest{Kind: messages.ControlAutoIrrigation, Enabled: false}, false},
		{"flora/auto_irr_ctrl", "1", messages.ControlRequest{Kind: messages.ControlAutoIrrigation, Enabled: true}, false},
		{"flora/auto_irr_ctrl", "maybe", messages.ControlRequest{}, true},
		{"flora/other", "1", messages.ControlRequest{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.topic+"="+tt.payload, func(t *testing.T) {
			err := c.Handle(tt.topic, &brokertest.Message{TopicName: tt.topic, Body: []byte(tt.payload)})
			got := in.Drain()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			tt.want.Source, tt.want.At = "mqtt", now
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestControl_RetainedAndDuplicate(t *testing.T) {
	in := NewInbox()
	c := NewControl("flora", in, dedup.New(time.Minute, 100))

	require.NoError(t, c.Handle("flora/man_irr_cmd", &brokertest.Message{TopicName: "flora/man_irr_cmd", Body: []byte("1"), RetainFlag: true}))
	assert.Zero(t, in.Len(), "retained manual commands are ignored")

	msg := &brokertest.Message{TopicName: "flora/auto_irr_ctrl", Body: []byte("1"), ID: 7, QoSLevel: 1}
	require.NoError(t, c.Handle(msg.TopicName, msg))
	redelivery := *msg
	redelivery.Dup = true
	require.NoError(t, c.Handle(msg.TopicName, &redelivery))
	assert.Equal(t, 1, in.Len())

	// a fresh message reusing the ID is processed
	require.NoError(t, c.Handle(msg.TopicName, msg))
	assert.Equal(t, 2, in.Len())
}

func TestControl_ThroughBroker(t *testing.T) {
	client := brokertest.NewClient()
	in := NewInbox()
	c := NewControl("flora", in, nil)
	consumer := broker.NewMultiConsumer(client, c.Filters(), 1, c.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.ConsumeMessage(ctx)
		close(done)
	}()
	<-consumer.Ready()

	client.Deliver("flora/auto_irr_ctrl", []byte("0"))
	client.Deliver("flora/man_irr_duration_ctrl", []byte("30"))
	assert.Equal(t, 2, in.Len())

	cancel()
	<-done
	assert.False(t, client.Subscribed("flora/auto_irr_ctrl"))
}

func TestPumpRouter(t *testing.T) {
	outs := map[string]*device.MemoryOutput{}
	cfgs := []config.PumpConfig{{Name: "front"}, {Name: "back"}}
	r, err := NewPumpRouter(cfgs, func(c config.PumpConfig) (device.Output, error) {
		o := device.NewMemoryOutput()
		outs[c.Name] = o
		return o, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"front", "back"}, r.Names())
	for ref, want := range map[string]string{"1": "front", "2": "back", "back": "back", " front ": "front"} {
		got, ok := r.Resolve(ref)
		assert.True(t, ok, ref)
		assert.Equal(t, want, got, ref)
	}
	for _, ref := range []string{"0", "3", "side", ""} {
		_, ok := r.Resolve(ref)
		assert.False(t, ok, ref)
	}

	r.Restore([]entities.IrrigationState{
		{Pump: "back", IsRunning: true, StartedAt: entities.T(at(9, 0)), Mode: entities.RunAuto, Duration: time.Minute},
		{Pump: "ghost", IsRunning: true},
	})
	states := r.States()
	require.Len(t, states, 2)
	assert.False(t, states[0].IsRunning)
	assert.True(t, states[1].Unconfirmed)

	p, ok := r.Get("front")
	require.True(t, ok)
	_, err = p.Apply(context.Background(), entities.PumpCommand{Pump: "front", Action: entities.ActionStart, Mode: entities.RunManual, Duration: time.Minute}, entities.Interlocks{}, at(10, 0))
	require.NoError(t, err)
	require.True(t, outs["front"].On())

	r.Close(context.Background())
	assert.False(t, outs["front"].On())
	assert.False(t, outs["back"].On())
}

func TestPumpRouter_RestoreWhileReading(t *testing.T) {
	r, err := NewPumpRouter([]config.PumpConfig{{Name: "front"}, {Name: "back"}}, func(config.PumpConfig) (device.Output, error) {
		return device.NewMemoryOutput(), nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Restore([]entities.IrrigationState{{Pump: "front", IsRunning: true, Duration: time.Minute}})
		}()
		go func() {
			defer wg.Done()
			assert.Len(t, r.States(), 2)
		}()
	}
	wg.Wait()
	assert.True(t, r.States()[0].Unconfirmed)
}

func TestPumpRouter_Errors(t *testing.T) {
	_, err := NewPumpRouter(nil, nil)
	assert.Error(t, err)

	_, err = NewPumpRouter([]config.PumpConfig{{Name: "a"}, {Name: "a"}}, func(config.PumpConfig) (device.Output, error) {
		return device.NewMemoryOutput(), nil
	})
	assert.Error(t, err)

	boom := errors.New("no relay")
	_, err = NewPumpRouter([]config.PumpConfig{{Name: "a"}}, func(config.PumpConfig) (device.Output, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
