package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeIndexProgress_DeliversEvents(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeIndexProgress()
	defer unsub()

	b.PublishIndexProgress(IndexProgress{Profile: "p1", Bucket: "b1", Status: StatusIndexing})

	select {
	case ev := <-ch:
		require.Equal(t, "b1", ev.Bucket)
		require.Equal(t, StatusIndexing, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeIndexProgress()
	unsub()

	b.PublishIndexProgress(IndexProgress{Profile: "p1", Bucket: "b1"})

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestPublish_DropsOldestWhenSubscriberLags(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeIndexProgress()
	defer unsub()

	for i := 0; i < subscriberQueueDepth+10; i++ {
		b.PublishIndexProgress(IndexProgress{Bucket: "b1", ObjectsIndexed: int64(i)})
	}

	// The channel should be full but not block the publisher, and the
	// most recent events should have displaced the oldest ones.
	require.Len(t, ch, subscriberQueueDepth)
}

func TestMultipleSubscribersEachGetDelivery(t *testing.T) {
	b := New()
	ch1, unsub1 := b.SubscribeIndexProgress()
	defer unsub1()
	ch2, unsub2 := b.SubscribeIndexProgress()
	defer unsub2()

	b.PublishIndexProgress(IndexProgress{Bucket: "b1"})

	for _, ch := range []<-chan IndexProgress{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, "b1", ev.Bucket)
		case <-time.After(time.Second):
			t.Fatal("expected delivery to every subscriber")
		}
	}
}
