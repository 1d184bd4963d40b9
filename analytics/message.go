package analytics

// MessageType is the kind of a message sent to the collector.
type MessageType string

const (
	MessageTypeIdentify MessageType = "identify"
	MessageTypeTrack    MessageType = "track"
)

// Message is either an Identify or a Track. Messages are built, dispatched
// once and discarded.
type Message interface {
	Type() MessageType
	// Subject is the installation identity the message is about.
	Subject() string
}

// Identify describes durable characteristics of an installation.
type Identify struct {
	UserID string `json:"userId"`
	Traits any    `json:"traits"`
}

func (Identify) Type() MessageType { return MessageTypeIdentify }
func (i Identify) Subject() string { return i.UserID }

// Track describes a single discrete occurrence.
type Track struct {
	UserID     string         `json:"userId"`
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

func (Track) Type() MessageType { return MessageTypeTrack }
func (t Track) Subject() string { return t.UserID }
