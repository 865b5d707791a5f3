package realtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/comalice/energyflow"
)

type namedSink struct {
	name string
	sink energyflow.Sink
}

// RegisterSink adds a named event sink. Names must be unique.
func (s *Scheduler) RegisterSink(name string, sink energyflow.Sink) error {
	if sink == nil {
		return fmt.Errorf("sink %q is nil", name)
	}
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	for _, ns := range s.sinks {
		if ns.name == name {
			return fmt.Errorf("sink %q already registered", name)
		}
	}
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	return nil
}

// UnregisterSink removes a sink and reports whether it was registered.
func (s *Scheduler) UnregisterSink(name string) bool {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	for i, ns := range s.sinks {
		if ns.name == name {
			s.sinks = append(s.sinks[:i], s.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// emit delivers ev to every sink. A failing sink never affects the others or the loop.
func (s *Scheduler) emit(ev energyflow.Event) {
	s.sinksMu.RLock()
	sinks := make([]namedSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.sinksMu.RUnlock()

	for _, ns := range sinks {
		s.emitTo(ns, ev)
	}
}

func (s *Scheduler) emitTo(ns namedSink, ev energyflow.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.sinkFailures.Inc()
			s.log.Error("sink panicked", zap.String("sink", ns.name), zap.Uint64("seq", ev.EventSeq()), zap.Any("panic", r))
		}
	}()
	if err := ns.sink.Emit(ev); err != nil {
		s.sinkFailures.Inc()
		s.log.Warn("sink failed", zap.String("sink", ns.name), zap.Uint64("seq", ev.EventSeq()), zap.Error(err))
	}
}
