package orchestrator

// notification is one queued delivery: a state snapshot, an event, or both.
type notification struct {
	state *State
	event *Event
}

type subscriber struct {
	id int
	fn func(State)
}

// Subscribe registers fn to receive every state change, in order. fn runs
// on whichever goroutine caused the change, outside the orchestrator's lock,
// and may call back into the Orchestrator. The returned func unsubscribes.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSubID++
	id := o.nextSubID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// publishLocked queues the current state, plus ev if non-nil. Callers must
// hold o.mu and call flush after releasing it.
func (o *Orchestrator) publishLocked(ev *Event) {
	st := o.state
	o.queue = append(o.queue, notification{state: &st, event: ev})
}

// flush delivers queued notifications. Only one goroutine delivers at a
// time; others enqueue and return, so delivery order matches mutation order
// and re-entrant calls from observers cannot deadlock.
func (o *Orchestrator) flush() {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	for len(o.queue) > 0 {
		batch := o.queue
		o.queue = nil
		subs := append([]subscriber(nil), o.subs...)
		o.mu.Unlock()

		for _, n := range batch {
			if n.state != nil {
				for _, s := range subs {
					s.fn(*n.state)
				}
			}
			if n.event != nil && o.session != nil {
				o.session.Emit(*n.event)
			}
		}

		o.mu.Lock()
	}
	o.flushing = false
	o.mu.Unlock()
}
