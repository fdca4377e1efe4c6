package events

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []Message
	err error
}

func (r *recorder) Publish(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func TestFanoutRoutesByPrefix(t *testing.T) {
	all, money := &recorder{}, &recorder{}
	f := NewFanout(
		Route{Publisher: all},
		Route{Prefixes: []string{"booking.payment_", "booking.refund_", "withdrawal."}, Publisher: money},
	)
	ctx := context.Background()
	require.NoError(t, f.Publish(ctx, Message{ID: "1", Type: "booking.accepted", Key: "b1"}))
	require.NoError(t, f.Publish(ctx, Message{ID: "2", Type: "booking.refund_succeeded", Key: "b1"}))
	require.NoError(t, f.Publish(ctx, Message{ID: "3", Type: "withdrawal.requested", Key: "e1"}))

	require.Len(t, all.got, 3)
	require.Len(t, money.got, 2)
	require.Equal(t, "2", money.got[0].ID)
}

func TestFanoutReportsAnyFailure(t *testing.T) {
	ok, bad := &recorder{}, &recorder{err: errors.New("broker down")}
	f := NewFanout(Route{Publisher: ok}, Route{Publisher: bad})
	err := f.Publish(context.Background(), Message{ID: "1", Type: "booking.created"})
	require.ErrorContains(t, err, "broker down")
	require.Len(t, ok.got, 1)
}

type fakeAMQP struct{ key, id string }

func (f *fakeAMQP) Publish(_ context.Context, key string, _ []byte, id string) error {
	f.key, f.id = key, id
	return nil
}

func TestRabbitPublisherUsesTypeAsRoutingKey(t *testing.T) {
	a := &fakeAMQP{}
	require.NoError(t, NewRabbitPublisher(a).Publish(context.Background(), Message{ID: "m-1", Type: "booking.cancelled"}))
	require.Equal(t, "booking.cancelled", a.key)
	require.Equal(t, "m-1", a.id)
}

type fakeWriter struct{ msgs []kafka.Message }

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByBooking(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "booking.financial.v1"}
	require.NoError(t, p.Publish(context.Background(), Message{ID: "m-1", Type: "booking.refund_failed", Key: "b-9", Payload: []byte(`{}`)}))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "booking.financial.v1", w.msgs[0].Topic)
	require.Equal(t, []byte("b-9"), w.msgs[0].Key)
	require.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	_, err := NewKafkaPublisher(nil, "t")
	require.Error(t, err)
}
