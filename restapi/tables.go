package restapi

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/gorilla/schema"

	"github.com/relativeprotocol/peerbridge/transport"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func (s *Server) hosts(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, render.M{"hosts": s.bridge.Hosts()})
}

func (s *Server) peers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, render.M{"peers": s.bridge.Peers()})
}

func (s *Server) connects(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, render.M{"connects": s.bridge.Connects()})
}

const defaultEventsLimit = 32

// eventsQuery filters /events. Limit is capped at the ring capacity.
type eventsQuery struct {
	Limit int    `schema:"limit"`
	Type  string `schema:"type"`
}

type eventView struct {
	ID      int    `json:"id"`
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	HostID  int    `json:"host_id"`
	PeerID  int    `json:"peer_id,omitempty"`
	Channel uint8  `json:"channel"`
	Size    int    `json:"size"`
	Code    uint32 `json:"code,omitempty"`
	Time    string `json:"time"`
}

// events lists the ring newest first. Payloads are reported by size only.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	q := eventsQuery{Limit: defaultEventsLimit}
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, newError(err.Error()))
		return
	}
	if capacity := s.bridge.Config().MaxEvents; q.Limit <= 0 || q.Limit > capacity {
		q.Limit = capacity
	}

	out := make([]eventView, 0, q.Limit)
	for _, ev := range s.bridge.RecentEvents(s.bridge.Config().MaxEvents) {
		if len(out) == q.Limit {
			break
		}
		if q.Type != "" && ev.Type.String() != q.Type {
			continue
		}
		out = append(out, eventView{
			ID:      s.bridge.EventID(ev.Seq),
			Seq:     ev.Seq,
			Type:    ev.Type.String(),
			HostID:  int(ev.HostID),
			PeerID:  int(ev.PeerID),
			Channel: ev.Channel,
			Size:    payloadSize(ev.Type, ev.Data),
			Code:    ev.Code,
			Time:    ev.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	render.JSON(w, r, render.M{"events": out})
}

func payloadSize(t transport.EventType, data []byte) int {
	if t != transport.EventReceive {
		return 0
	}
	return len(data)
}
