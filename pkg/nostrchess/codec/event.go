package codec

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// Tag markers used on "e" references.
const (
	MarkerRoot  = "root"
	MarkerReply = "reply"
)

// Event is an immutable, signed, content-addressed message.
type Event struct {
	ID        string          `json:"id"`
	PubKey    string          `json:"pubkey"`
	CreatedAt nostr.Timestamp `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      nostr.Tags      `json:"tags"`
	Content   string          `json:"content"`
	Sig       string          `json:"sig"`
}

// UnsignedEvent holds the fields an author controls before signing.
type UnsignedEvent struct {
	CreatedAt nostr.Timestamp
	Kind      int
	Tags      nostr.Tags
	Content   string
}

// MarshalJSON implements json.Marshaler. Nil tags encode as an empty array.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if a.Tags == nil {
		a.Tags = nostr.Tags{}
	}
	return json.Marshal(a)
}

// Nostr converts the event to the go-nostr representation, used for filter
// matching and canonical serialization.
func (e Event) Nostr() *nostr.Event {
	return &nostr.Event{
		ID:        e.ID,
		PubKey:    e.PubKey,
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       e.Sig,
	}
}

// Reference is a single "e" tag.
type Reference struct {
	ID     string
	Relay  string
	Marker string
}

// References returns the "e" tags of the event in tag order.
// Tags without a value are skipped.
func (e Event) References() []Reference {
	var refs []Reference
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		ref := Reference{ID: tag[1]}
		if len(tag) > 2 {
			ref.Relay = tag[2]
		}
		if len(tag) > 3 {
			ref.Marker = tag[3]
		}
		refs = append(refs, ref)
	}
	return refs
}

// Marked returns the "e" references carrying the given marker.
func (e Event) Marked(marker string) []Reference {
	var out []Reference
	for _, ref := range e.References() {
		if ref.Marker == marker {
			out = append(out, ref)
		}
	}
	return out
}

// RootTag builds a root-marked "e" tag.
func RootTag(id string) nostr.Tag {
	return nostr.Tag{"e", id, "", MarkerRoot}
}

// ReplyTag builds a reply-marked "e" tag.
func ReplyTag(id string) nostr.Tag {
	return nostr.Tag{"e", id, "", MarkerReply}
}
