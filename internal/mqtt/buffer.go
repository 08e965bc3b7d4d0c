package mqtt

// outMsg is a serialized MQTT message held for replay after reconnection.
type outMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while disconnected.
// When full, the oldest message is dropped. Not safe for concurrent use.
type outbox struct {
	msgs    []outMsg
	start   int // index of the oldest message
	n       int
	dropped int // messages lost since the last take
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]outMsg, capacity)}
}

func (o *outbox) add(m outMsg) {
	c := len(o.msgs)
	if o.n == c {
		o.msgs[o.start] = m
		o.start = (o.start + 1) % c
		o.dropped++
		return
	}
	o.msgs[(o.start+o.n)%c] = m
	o.n++
}

// take removes and returns every queued message, oldest first, and the
// number of messages dropped since the previous take.
func (o *outbox) take() ([]outMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.n == 0 {
		return nil, dropped
	}

	c := len(o.msgs)
	out := make([]outMsg, o.n)
	for i := range out {
		out[i] = o.msgs[(o.start+i)%c]
		o.msgs[(o.start+i)%c] = outMsg{}
	}
	o.start, o.n = 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.n
}
