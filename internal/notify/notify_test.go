package notify

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicRisks, TopicFor(record.KindRisk))
	assert.Equal(t, TopicControls, TopicFor(record.KindControl))
}

func TestBus_DeliversToTopicOnly(t *testing.T) {
	b := NewBus()
	risks, cancelRisks := b.Subscribe(TopicRisks)
	defer cancelRisks()
	controls, cancelControls := b.Subscribe(TopicControls)
	defer cancelControls()

	n := b.Publish(TopicRisks, Event{Action: "create", ID: "R1"})
	assert.Equal(t, 1, n)

	ev := <-risks
	assert.Equal(t, TopicRisks, ev.Topic)
	assert.Equal(t, "R1", ev.ID)

	select {
	case ev := <-controls:
		t.Fatalf("unexpected event on controls channel: %+v", ev)
	default:
	}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe(TopicControls)
	defer cancelA()
	c, cancelC := b.Subscribe(TopicControls)
	defer cancelC()

	assert.Equal(t, 2, b.Publish(TopicControls, Event{ID: "CTRL-001"}))
	assert.Equal(t, "CTRL-001", (<-a).ID)
	assert.Equal(t, "CTRL-001", (<-c).ID)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewBus()
	assert.Equal(t, 0, b.Publish(TopicRisks, Event{}))
}

func TestBus_FullSubscriberDropsAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := NewBus(WithBuffer(1), WithMetrics(m))
	ch, cancel := b.Subscribe(TopicRisks)
	defer cancel()

	assert.Equal(t, 1, b.Publish(TopicRisks, Event{ID: "first"}))
	assert.Equal(t, 0, b.Publish(TopicRisks, Event{ID: "second"}), "publish must not block")

	assert.Equal(t, "first", (<-ch).ID)

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, f := range families {
		if f.GetName() == "riskctl_notifications_dropped_total" {
			dropped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, dropped)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(TopicRisks)
	assert.Equal(t, 1, b.Subscribers(TopicRisks))

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers(TopicRisks))
	assert.Equal(t, 0, b.Publish(TopicRisks, Event{}))
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(TopicRisks)

	b.Close()
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(TopicRisks, Event{}))
	assert.NotPanics(t, cancel)

	late, _ := b.Subscribe(TopicRisks)
	_, ok = <-late
	assert.False(t, ok)
}

func TestBus_NilPublishIsNoop(t *testing.T) {
	var b *Bus
	assert.Equal(t, 0, b.Publish(TopicRisks, Event{}))
}

func TestBus_ConcurrentPublishAndCancel(t *testing.T) {
	b := NewBus(WithBuffer(1))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		_, cancel := b.Subscribe(TopicControls)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(TopicControls, Event{})
			}
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers(TopicControls))
}
