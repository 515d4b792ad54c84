// Package broker hands pipeline progress streams from the goroutine running a pipeline to the HTTP handler that
// streams them to the client.
package broker

import (
	"context"
	"sync"
)

type publication[TID comparable, TPayload any] struct {
	id      TID
	channel <-chan TPayload
}

type subscription[TID comparable, TPayload any] struct {
	id      TID
	channel chan (<-chan TPayload)
}

// ChannelBroker passes a published channel to its first subscriber.
//
// A run of the chapter pipeline publishes its progress channel under the run id. The first subscriber, usually the
// SSE handler, receives the channel and drains it. Later subscribers, e.g. reconnecting clients, wait until the run
// is unpublished and then see their subscription closed, which tells them to read the persisted pipeline state
// instead. Subscribing to an unknown or finished run closes the subscription immediately.
type ChannelBroker[TID comparable, TPayload any] struct {
	done        chan struct{}
	publish     chan publication[TID, TPayload]
	unpublish   chan TID
	subscribe   chan subscription[TID, TPayload]
	unsubscribe chan subscription[TID, TPayload]
	stopOnce    sync.Once
}

// NewChannelBroker creates a broker. Run [ChannelBroker.Start] in a goroutine before use.
func NewChannelBroker[TID comparable, TPayload any]() *ChannelBroker[TID, TPayload] {
	return &ChannelBroker[TID, TPayload]{
		done:        make(chan struct{}),
		publish:     make(chan publication[TID, TPayload]),
		unpublish:   make(chan TID),
		subscribe:   make(chan subscription[TID, TPayload]),
		unsubscribe: make(chan subscription[TID, TPayload]),
		stopOnce:    sync.Once{},
	}
}

// Start serves publish, unpublish and subscribe requests until ctx is done or [ChannelBroker.Stop] is called.
func (b *ChannelBroker[TID, TPayload]) Start(ctx context.Context) {
	published := map[TID]<-chan TPayload{}
	claimed := map[TID]bool{}
	waiting := map[TID][]chan (<-chan TPayload){}

	release := func(id TID) {
		for _, w := range waiting[id] {
			close(w)
		}
		delete(waiting, id)
		delete(claimed, id)
		delete(published, id)
	}
	defer func() {
		b.Stop()
		for id := range waiting {
			release(id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return

		case sub := <-b.subscribe:
			c, ok := published[sub.id]
			switch {
			case !ok:
				close(sub.channel)
			case !claimed[sub.id]:
				claimed[sub.id] = true
				sub.channel <- c
				close(sub.channel)
			default:
				waiting[sub.id] = append(waiting[sub.id], sub.channel)
			}

		case sub := <-b.unsubscribe:
			subs := waiting[sub.id]
			for i, w := range subs {
				if w == sub.channel {
					waiting[sub.id] = append(subs[:i], subs[i+1:]...)
					close(w)
					break
				}
			}

		case pub := <-b.publish:
			published[pub.id] = pub.channel

		case id := <-b.unpublish:
			release(id)
		}
	}
}

// Stop ends [ChannelBroker.Start]. Waiting subscribers are released.
func (b *ChannelBroker[TID, TPayload]) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe returns a channel that yields the published channel of id to the first subscriber and is then closed.
// For other subscribers it is closed once id is unpublished, or right away when id is not published.
//
// Cancelling ctx abandons a waiting subscription and closes the returned channel.
func (b *ChannelBroker[TID, TPayload]) Subscribe(ctx context.Context, id TID) <-chan (<-chan TPayload) {
	sub := subscription[TID, TPayload]{id: id, channel: make(chan (<-chan TPayload), 1)}
	select {
	case b.subscribe <- sub:
	case <-b.done:
		close(sub.channel)
		return sub.channel
	case <-ctx.Done():
		close(sub.channel)
		return sub.channel
	}

	go func() {
		select {
		case <-ctx.Done():
			select {
			case b.unsubscribe <- sub:
			case <-b.done:
			}
		case <-b.done:
		}
	}()
	return sub.channel
}

// Publish registers channel under id.
func (b *ChannelBroker[TID, TPayload]) Publish(id TID, channel <-chan TPayload) {
	select {
	case b.publish <- publication[TID, TPayload]{id: id, channel: channel}:
	case <-b.done:
	}
}

// Unpublish removes id and releases the subscribers waiting for it.
func (b *ChannelBroker[TID, TPayload]) Unpublish(id TID) {
	select {
	case b.unpublish <- id:
	case <-b.done:
	}
}
