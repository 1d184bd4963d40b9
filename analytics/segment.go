package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/quartz"
	"github.com/searchd/analytics/buildinfo"
)

const (
	// VersionHeader is sent in every request to the collector to
	// report the version of searchd.
	VersionHeader = "X-Searchd-Version"

	// DefaultWriteKey authenticates this build against the collector.
	DefaultWriteKey = "vHi89WrNDckHSQssyUJqLvIyp2QFITSC"

	libraryName = "searchd-analytics"
)

// DefaultCollectorURL is the Segment-compatible collector messages are sent
// to unless configured otherwise.
var DefaultCollectorURL = &url.URL{Scheme: "https", Host: "api.segment.io"}

// SegmentSink sends messages to a Segment-compatible HTTP API. Batching,
// retries and compression are left to the collector.
type SegmentSink struct {
	baseURL  *url.URL
	writeKey string
	client   *http.Client
	clock    quartz.Clock
}

type SegmentOption func(*SegmentSink)

// WithHTTPClient overrides the client used for requests.
func WithHTTPClient(client *http.Client) SegmentOption {
	return func(s *SegmentSink) {
		s.client = client
	}
}

// WithSegmentClock sets the clock used for message timestamps.
func WithSegmentClock(clock quartz.Clock) SegmentOption {
	return func(s *SegmentSink) {
		s.clock = clock
	}
}

func NewSegmentSink(baseURL *url.URL, writeKey string, opts ...SegmentOption) *SegmentSink {
	if baseURL == nil {
		baseURL = DefaultCollectorURL
	}
	s := &SegmentSink{
		baseURL:  baseURL,
		writeKey: writeKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		clock:    quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type segmentLibrary struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type segmentContext struct {
	Library segmentLibrary `json:"library"`
}

type segmentEnvelope struct {
	Type      MessageType    `json:"type"`
	MessageID string         `json:"messageId"`
	UserID    string         `json:"userId"`
	Timestamp time.Time      `json:"timestamp"`
	Context   segmentContext `json:"context"`
}

type segmentIdentify struct {
	segmentEnvelope
	Traits any `json:"traits"`
}

type segmentTrack struct {
	segmentEnvelope
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

func (s *SegmentSink) Send(ctx context.Context, msg Message) error {
	envelope := segmentEnvelope{
		Type:      msg.Type(),
		MessageID: uuid.NewString(),
		UserID:    msg.Subject(),
		Timestamp: s.clock.Now().UTC(),
		Context: segmentContext{
			Library: segmentLibrary{Name: libraryName, Version: buildinfo.Version()},
		},
	}
	var payload any
	switch m := msg.(type) {
	case Identify:
		payload = segmentIdentify{segmentEnvelope: envelope, Traits: m.Traits}
	case Track:
		properties := m.Properties
		// The collector rejects tracks without properties.
		if properties == nil {
			properties = map[string]any{}
		}
		payload = segmentTrack{segmentEnvelope: envelope, Event: m.Event, Properties: properties}
	default:
		return xerrors.Errorf("unsupported message type %T", msg)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("marshal %s: %w", msg.Type(), err)
	}
	endpoint := s.baseURL.JoinPath("v1", string(msg.Type()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("create %s request: %w", msg.Type(), err)
	}
	req.SetBasicAuth(s.writeKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(VersionHeader, buildinfo.Version())

	resp, err := s.client.Do(req)
	if err != nil {
		return xerrors.Errorf("send %s: %w", msg.Type(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.Errorf("bad response from collector: %s", resp.Status)
	}
	return nil
}
