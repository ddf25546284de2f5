package nostrchess_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// fakeRelay answers REQ frames with every preloaded event and records all
// frames it receives.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	events   []codec.Event
	frames   []frame
	peers    []*peer
	accepted int
}

// peer is one server-side connection. Writes are serialized.
type peer struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (p *peer) write(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = p.ws.WriteMessage(websocket.TextMessage, data)
}

// frame is a received client frame tagged with the connection it came on.
type frame struct {
	conn  int
	typ   string
	subID string
	raw   string
}

func newFakeRelay(t *testing.T, events ...codec.Event) *fakeRelay {
	t.Helper()
	r := &fakeRelay{events: events}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *fakeRelay) handle(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	p := &peer{ws: ws}
	r.mu.Lock()
	r.accepted++
	connID := r.accepted
	r.peers = append(r.peers, p)
	r.mu.Unlock()

	send := func(v any) {
		data, _ := json.Marshal(v)
		p.write(data)
	}

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var arr []json.RawMessage
		if json.Unmarshal(payload, &arr) != nil || len(arr) < 2 {
			continue
		}
		var typ, second string
		_ = json.Unmarshal(arr[0], &typ)
		_ = json.Unmarshal(arr[1], &second)

		f := frame{conn: connID, typ: typ, raw: string(payload)}
		if typ == "REQ" || typ == "CLOSE" {
			f.subID = second
		}

		r.mu.Lock()
		r.frames = append(r.frames, f)
		events := append([]codec.Event(nil), r.events...)
		r.mu.Unlock()

		if typ == "REQ" {
			for _, ev := range events {
				send([]any{"EVENT", second, ev})
			}
			send([]any{"EOSE", second})
		}
		if typ == "EVENT" {
			var ev codec.Event
			_ = json.Unmarshal(arr[1], &ev)
			send([]any{"OK", ev.ID, true, ""})
		}
	}
}

// received returns frames of the given type.
func (r *fakeRelay) received(typ string) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame
	for _, f := range r.frames {
		if f.typ == typ {
			out = append(out, f)
		}
	}
	return out
}

// broadcast writes a raw frame to the latest connection.
func (r *fakeRelay) broadcast(raw string) {
	r.mu.Lock()
	if len(r.peers) == 0 {
		r.mu.Unlock()
		return
	}
	p := r.peers[len(r.peers)-1]
	r.mu.Unlock()
	p.write([]byte(raw))
}

// dropAll closes every server-side connection.
func (r *fakeRelay) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		p.ws.Close()
	}
}

func (r *fakeRelay) connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepted
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
