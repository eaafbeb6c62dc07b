package entity

// Event is one classified inbound update from the transport. The webhook
// layer maps the wire format into this type so the conversation logic never
// sees transport structures.
type EventKind uint

const (
	EventText EventKind = iota + 1
	EventMedia
	EventLocation
)

// MediaKind is stored next to the media reference instead of being sniffed
// from the reference string. An event with a kind outside this set is
// rejected with a guidance reply.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaPhoto || k == MediaVideo
}

type Event struct {
	Kind   EventKind
	UserID int64
	Handle string

	// EventText
	Text string

	// EventMedia
	MediaRef  string
	MediaKind MediaKind

	// EventLocation
	Latitude  float64
	Longitude float64
}
