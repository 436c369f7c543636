package signal

// Bus is a double-buffered signal bus. Signals received before SwapBuffers
// are dispatched by the following DispatchAll, in arrival order; the replay
// driver swaps and dispatches in the Output phase of the same tick.
// Not safe for concurrent use.
type Bus struct {
	front    []Signal
	back     []Signal
	handlers map[Kind][]func(Signal)
	any      []func(Signal)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]Signal, 0, 64),
		back:     make([]Signal, 0, 64),
		handlers: make(map[Kind][]func(Signal)),
	}
}

// Receive queues a signal into the back buffer.
func (b *Bus) Receive(s Signal) {
	b.back = append(b.back, s)
}

// Subscribe registers a handler for one kind.
func (b *Bus) Subscribe(k Kind, fn func(Signal)) {
	b.handlers[k] = append(b.handlers[k], fn)
}

// SubscribeAll registers a handler for every kind.
func (b *Bus) SubscribeAll(fn func(Signal)) {
	b.any = append(b.any, fn)
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// Pending returns the number of signals waiting in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// DispatchAll delivers the front buffer to subscribers and returns how many
// signals were delivered.
func (b *Bus) DispatchAll() int {
	for _, s := range b.front {
		for _, h := range b.any {
			h(s)
		}
		for _, h := range b.handlers[s.Kind] {
			h(s)
		}
	}
	return len(b.front)
}
