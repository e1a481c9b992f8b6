package telemetry

import "sync"

type Event struct {
	Kind   string
	Id     string
	Params []any
}

// Recorder is an API that keeps every reported event in memory so tests can
// assert on what was reported.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *Recorder) record(kind, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, Event{Kind: kind, Id: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record("count", id, []any{count})
}

func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Ids returns the ids of all events of the given kind in order.
func (r *Recorder) Ids(kind string) []string {
	var ids []string
	for _, e := range r.Events() {
		if e.Kind == kind {
			ids = append(ids, e.Id)
		}
	}
	return ids
}
