package notice

import (
	"context"
	"fmt"
	"time"
)

const listedAtLayout = "2006-01-02 15:04:05"

// Notice is the listing announcement document consumed by downstream listeners.
type Notice struct {
	Type       string  `json:"type"`
	Action     string  `json:"action"`
	Title      string  `json:"title"`
	Content    *string `json:"content"`
	Exchange   string  `json:"exchange"`
	URL        string  `json:"url"`
	Category   string  `json:"category"`
	ListedAt   string  `json:"listedAt"`
	ListedTs   int64   `json:"listedTs"`
	ReceivedTs int64   `json:"receivedTs"`
}

type Publisher interface {
	Publish(ctx context.Context, n Notice) error
}

// TestSymbol derives the synthetic coin from the millisecond part of now.
func TestSymbol(now time.Time) string {
	return fmt.Sprintf("TST%03d", now.UnixMilli()%1000)
}

// NewTestNotice builds a new-listing notice for a synthetic coin. listedAt is
// rendered in loc; receivedTs trails listedTs by 100ms.
func NewTestNotice(now time.Time, loc *time.Location) Notice {
	if loc == nil {
		loc = time.Local
	}
	ts := now.UnixMilli()
	return Notice{
		Type:       "NOTICE",
		Action:     "NEW",
		Title:      fmt.Sprintf("Market Support for %s(Tasdas), XRP(Ripple Network) (BTC, USDT Market)", TestSymbol(now)),
		Exchange:   "UPBIT",
		URL:        "https://upbit.com/service_center/notice?id=4695",
		Category:   "Trade",
		ListedAt:   now.In(loc).Format(listedAtLayout),
		ListedTs:   ts,
		ReceivedTs: ts + 100,
	}
}

// PublishTest publishes one synthetic notice and returns the report text.
func PublishTest(ctx context.Context, pub Publisher, now time.Time, loc *time.Location) (string, error) {
	n := NewTestNotice(now, loc)
	if err := pub.Publish(ctx, n); err != nil {
		return "", fmt.Errorf("publish %s test notice: %w", n.Exchange, err)
	}
	return fmt.Sprintf("Executing test notices\nPublished %s test notice for %s\n", n.Exchange, TestSymbol(now)), nil
}
