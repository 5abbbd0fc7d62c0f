package router

// UpdateKind is the variant of a routing-table update broadcast on the
// router_updates channel (spec section 5).
type UpdateKind int

const (
	UpdateDeploymentActive UpdateKind = iota
	UpdateDeploymentRemoved
	UpdateFullReload
)

// Update is one message on the routing-table broadcast channel.
type Update struct {
	Kind         UpdateKind
	DeploymentID int64
	Domain       string
	Port         int // 0 for a static site
	StorePath    string
	SPA          bool
}

// Broadcaster fans an Update out to every subscriber. Modeled on a lossy
// pub/sub: each subscriber has a small buffered channel and a slow or
// absent reader simply misses updates rather than blocking a producer —
// acceptable here because the router's periodic full reload (spec section
// 4.7) re-syncs the table from the Store regardless.
type Broadcaster struct {
	subscribe   chan chan Update
	unsubscribe chan chan Update
	publish     chan Update
	done        chan struct{}
}

func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		subscribe:   make(chan chan Update),
		unsubscribe: make(chan chan Update),
		publish:     make(chan Update, 100),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	subscribers := make(map[chan Update]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			subscribers[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(subscribers, ch)
			close(ch)
		case update := <-b.publish:
			for ch := range subscribers {
				select {
				case ch <- update:
				default:
					// subscriber too slow; drop rather than block the producer
				}
			}
		case <-b.done:
			for ch := range subscribers {
				close(ch)
			}
			return
		}
	}
}

// Subscribe returns a channel of updates. Callers must Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Update {
	ch := make(chan Update, 16)
	b.subscribe <- ch
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Update) {
	b.unsubscribe <- ch
}

func (b *Broadcaster) Publish(update Update) {
	select {
	case b.publish <- update:
	default:
		// publish queue is full; the periodic full reload will catch up
	}
}

func (b *Broadcaster) Close() {
	close(b.done)
}
