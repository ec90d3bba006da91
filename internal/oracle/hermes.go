// Package oracle reads Pyth Hermes price feeds: a websocket stream for live
// samples and a REST endpoint used as fallback.
package oracle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cate-trust-layer/internal/domain"
)

// ErrUnknownFeed is returned for a price update of an unmapped feed id.
var ErrUnknownFeed = errors.New("unknown feed id")

// priceInfo is a fixed-point price: value = price * 10^expo.
type priceInfo struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type feedMetadata struct {
	NumPublishers int `json:"num_publishers"`
}

type priceFeed struct {
	ID       string        `json:"id"`
	Price    priceInfo     `json:"price"`
	EMAPrice *priceInfo    `json:"ema_price,omitempty"`
	Metadata *feedMetadata `json:"metadata,omitempty"`
}

// streamMessage is any message received on the stream.
type streamMessage struct {
	Type      string     `json:"type"`
	Status    string     `json:"status,omitempty"`
	Error     string     `json:"error,omitempty"`
	PriceFeed *priceFeed `json:"price_feed,omitempty"`
}

type subscribeRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type latestResponse struct {
	Parsed []priceFeed `json:"parsed"`
}

// FeedMap maps Hermes feed ids to asset ids.
type FeedMap struct {
	byFeed  map[string]string
	byAsset map[string]string
}

// NewFeedMap builds a FeedMap from asset id -> feed id.
func NewFeedMap(assets map[string]string) (*FeedMap, error) {
	m := &FeedMap{
		byFeed:  make(map[string]string, len(assets)),
		byAsset: make(map[string]string, len(assets)),
	}
	for asset, feed := range assets {
		if asset == "" || len(asset) > domain.MaxAssetIDLength {
			return nil, fmt.Errorf("invalid asset id %q", asset)
		}
		id := NormalizeFeedID(feed)
		if id == "" {
			return nil, fmt.Errorf("empty feed id for asset %s", asset)
		}
		if other, dup := m.byFeed[id]; dup {
			return nil, fmt.Errorf("feed %s mapped to both %s and %s", id, other, asset)
		}
		m.byFeed[id] = asset
		m.byAsset[asset] = id
	}
	return m, nil
}

// NormalizeFeedID lowercases id and strips a 0x prefix.
func NormalizeFeedID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}

// Asset returns the asset id for a feed id.
func (m *FeedMap) Asset(feedID string) (string, bool) {
	a, ok := m.byFeed[NormalizeFeedID(feedID)]
	return a, ok
}

// FeedID returns the feed id for an asset.
func (m *FeedMap) FeedID(assetID string) (string, bool) {
	f, ok := m.byAsset[assetID]
	return f, ok
}

// FeedIDs returns every mapped feed id.
func (m *FeedMap) FeedIDs() []string {
	out := make([]string, 0, len(m.byFeed))
	for id := range m.byFeed {
		out = append(out, id)
	}
	return out
}

// Assets returns every mapped asset id.
func (m *FeedMap) Assets() []string {
	out := make([]string, 0, len(m.byAsset))
	for a := range m.byAsset {
		out = append(out, a)
	}
	return out
}

// FixedToFloat converts a fixed-point integer string with exponent expo.
func FixedToFloat(value string, expo int32) (float64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse fixed-point %q: %w", value, err)
	}
	return d.Shift(expo).InexactFloat64(), nil
}

// toSample converts a feed update into an OracleSample.
func (m *FeedMap) toSample(f *priceFeed, source domain.SourceTag) (domain.OracleSample, error) {
	asset, ok := m.Asset(f.ID)
	if !ok {
		return domain.OracleSample{}, fmt.Errorf("%w: %s", ErrUnknownFeed, f.ID)
	}
	price, err := FixedToFloat(f.Price.Price, f.Price.Expo)
	if err != nil {
		return domain.OracleSample{}, fmt.Errorf("feed %s price: %w", f.ID, err)
	}
	conf, err := FixedToFloat(f.Price.Conf, f.Price.Expo)
	if err != nil {
		return domain.OracleSample{}, fmt.Errorf("feed %s conf: %w", f.ID, err)
	}

	s := domain.OracleSample{
		AssetID:     asset,
		Price:       price,
		Confidence:  conf,
		PublishTime: f.Price.PublishTime,
		Source:      source,
	}
	if f.Metadata != nil {
		s.PublisherCount = f.Metadata.NumPublishers
	}
	return s, nil
}
