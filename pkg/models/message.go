package models

import "time"

// InboundMessage is a raw delivery from the inbound queue. The queue owns it;
// consumers only read it and hand the receipt token back on acknowledgement.
type InboundMessage struct {
	ID           string    `json:"id"`
	Body         []byte    `json:"body"`
	ReceiptToken string    `json:"receipt_token"`
	ReceiveCount int       `json:"receive_count"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	Stream       string    `json:"stream,omitempty"`
}

// ChangeNotification is the decoded body of a third-party price/offer/position
// change notification.
type ChangeNotification struct {
	SubjectKey            string                 `json:"subject_key,omitempty"`
	ASIN                  string                 `json:"asin,omitempty"`
	SKU                   string                 `json:"sku,omitempty"`
	EventType             string                 `json:"event_type"`
	EventTime             time.Time              `json:"event_time"`
	Marketplace           string                 `json:"marketplace,omitempty"`
	OurPrice              float64                `json:"our_price"`
	LowestCompetitorPrice float64                `json:"lowest_competitor_price"`
	CompetitorCount       int                    `json:"competitor_count"`
	OurRank               int                    `json:"our_rank,omitempty"`
	IsLeading             *bool                  `json:"is_leading,omitempty"`
	BuyBoxPercentage      *float64               `json:"buy_box_percentage,omitempty"`
	Sessions              *float64               `json:"sessions,omitempty"`
	GapPct                *float64               `json:"gap_pct,omitempty"`
	RemainingQuota        *float64               `json:"remaining_quota,omitempty"`
	Fields                map[string]interface{} `json:"fields,omitempty"`
}

// ResolveSubjectKey returns the first non-empty identifier in priority order
// subject_key, asin, sku.
func (n *ChangeNotification) ResolveSubjectKey() string {
	switch {
	case n.SubjectKey != "":
		return n.SubjectKey
	case n.ASIN != "":
		return n.ASIN
	default:
		return n.SKU
	}
}

// GapPercentage is how far our price sits above the lowest competitor, in percent.
func (n *ChangeNotification) GapPercentage() float64 {
	if n.GapPct != nil {
		return *n.GapPct
	}
	if n.LowestCompetitorPrice <= 0 {
		return 0
	}
	return (n.OurPrice - n.LowestCompetitorPrice) / n.LowestCompetitorPrice * 100
}

// Leading reports whether the subject currently holds the leading position
// (buy box). Without an explicit flag a buy box share of at least 50% counts.
func (n *ChangeNotification) Leading() bool {
	if n.IsLeading != nil {
		return *n.IsLeading
	}
	if n.BuyBoxPercentage != nil {
		return *n.BuyBoxPercentage >= 50
	}
	return n.OurRank == 1
}

// NormalizedEvent is the validated, immutable form of an InboundMessage.
type NormalizedEvent struct {
	MessageID      string                 `json:"message_id"`
	SubjectKey     string                 `json:"subject_key"`
	EventType      string                 `json:"event_type"`
	EventTime      time.Time              `json:"event_time"`
	Payload        ChangeNotification     `json:"payload"`
	Raw            map[string]interface{} `json:"-"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// StateFields flattens the notification into the field map stored on CurrentState.
func (e *NormalizedEvent) StateFields() map[string]interface{} {
	p := e.Payload
	fields := make(map[string]interface{}, len(p.Fields)+8)
	for k, v := range p.Fields {
		fields[k] = v
	}
	fields["event_type"] = e.EventType
	fields["our_price"] = p.OurPrice
	fields["lowest_competitor_price"] = p.LowestCompetitorPrice
	fields["competitor_count"] = p.CompetitorCount
	fields["gap_pct"] = p.GapPercentage()
	fields["is_leading"] = p.Leading()
	if p.OurRank > 0 {
		fields["our_rank"] = p.OurRank
	}
	if p.Marketplace != "" {
		fields["marketplace"] = p.Marketplace
	}
	if p.BuyBoxPercentage != nil {
		fields["buy_box_percentage"] = *p.BuyBoxPercentage
	}
	if p.Sessions != nil {
		fields["sessions"] = *p.Sessions
	}
	return fields
}
