package signal

import "slices"

// Sink receives signals synchronously, one at a time.
type Sink interface {
	Receive(s Signal)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Signal)

func (f SinkFunc) Receive(s Signal) { f(s) }

// Discard drops every signal.
var Discard Sink = SinkFunc(func(Signal) {})

// Recorder keeps every signal in arrival order.
type Recorder struct {
	signals []Signal
}

func (r *Recorder) Receive(s Signal) { r.signals = append(r.signals, s) }

func (r *Recorder) Signals() []Signal { return slices.Clone(r.signals) }
func (r *Recorder) Len() int          { return len(r.signals) }
func (r *Recorder) Reset()            { r.signals = r.signals[:0] }

// OfKind returns the recorded signals of kind k.
func (r *Recorder) OfKind(k Kind) []Signal {
	var out []Signal
	for _, s := range r.signals {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// Tee forwards each signal to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(s Signal) {
		for _, k := range sinks {
			k.Receive(s)
		}
	})
}
