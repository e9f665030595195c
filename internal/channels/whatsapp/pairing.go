package whatsapp

import "sync"

// QRStream delivers QR pairing payloads published by the bridge (type="qr"
// envelopes) to the WHATSAPP_QR marker handler (§4.3) and to the standalone
// `pair` CLI command (§6.4). It also satisfies marker.QRSource by caching
// the most recently published payload, since a marker processed well after
// the bridge's "qr" envelope arrived still needs to hand back that code.
type QRStream struct {
	mu     sync.Mutex
	subs   []chan string
	latest string
	have   bool
}

func NewQRStream() *QRStream { return &QRStream{} }

func (q *QRStream) Subscribe() <-chan string {
	ch := make(chan string, 1)
	q.mu.Lock()
	q.subs = append(q.subs, ch)
	q.mu.Unlock()
	return ch
}

func (q *QRStream) Publish(payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.latest = payload
	q.have = true
	for _, ch := range q.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Latest implements marker.QRSource.
func (q *QRStream) Latest() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest, q.have
}
