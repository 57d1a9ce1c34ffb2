package bus

// FakeBus is a test double for Bus.
//
// Batches scripts, per channel, the number of messages each successive
// Drain call observes; once a channel's script is exhausted every further
// Drain returns nothing. The script is shared across subscriptions to the
// same channel, so re-subscribing (as the harness does between warm-up and
// measurement) continues consuming where the previous handle left off.
// Set SubscribeErr to inject a failure on every Subscribe.
type FakeBus struct {
	Batches      map[string][]int
	SubscribeErr error
	Subscribed   []string
	Closed       bool
}

// Subscribe returns a handle backed by the channel's script, or
// SubscribeErr if set.
func (f *FakeBus) Subscribe(channel string) (Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.Subscribed = append(f.Subscribed, channel)
	return &FakeSubscription{bus: f, channel: channel}, nil
}

// Close marks the bus as closed.
func (f *FakeBus) Close() error {
	f.Closed = true
	return nil
}

// FakeSubscription pops scripted batches from its FakeBus on each Drain.
type FakeSubscription struct {
	bus          *FakeBus
	channel      string
	DrainCalls   int
	Unsubscribed bool
}

// Channel returns the channel name this subscription covers.
func (s *FakeSubscription) Channel() string { return s.channel }

// Drain returns the next scripted batch as empty payloads, or nothing when
// the script is exhausted.
func (s *FakeSubscription) Drain() [][]byte {
	s.DrainCalls++
	script := s.bus.Batches[s.channel]
	if len(script) == 0 {
		return nil
	}
	n := script[0]
	s.bus.Batches[s.channel] = script[1:]
	msgs := make([][]byte, n)
	for i := range msgs {
		msgs[i] = []byte{}
	}
	return msgs
}

// Unsubscribe marks the handle as detached.
func (s *FakeSubscription) Unsubscribe() error {
	s.Unsubscribed = true
	return nil
}
