package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintRoundTrip(t *testing.T) {
	fp := NewFingerprint("B00|EU", SeverityHigh)
	assert.Equal(t, "B00|EU|HIGH", fp.String())

	parsed, err := ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)

	_, err = ParseFingerprint("no-separator")
	assert.Error(t, err)
	_, err = ParseFingerprint("B00|UNKNOWN")
	assert.Error(t, err)
}

func TestSeverityOrdering(t *testing.T) {
	assert.False(t, SeverityOK.AlertWorthy())
	assert.True(t, SeverityWarning.AlertWorthy())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.Equal(t, SeverityCritical, SeverityCritical.Next())
	assert.Equal(t, SeverityHigh, SeverityWarning.Next())
}

func TestChangeNotification(t *testing.T) {
	leading := true
	bb := 70.0
	gap := 12.5

	tests := []struct {
		name        string
		n           ChangeNotification
		wantKey     string
		wantGap     float64
		wantLeading bool
	}{
		{
			name:    "subject key wins over asin",
			n:       ChangeNotification{SubjectKey: "K1", ASIN: "A1", OurPrice: 15, LowestCompetitorPrice: 10},
			wantKey: "K1",
			wantGap: 50,
		},
		{
			name:    "asin then sku",
			n:       ChangeNotification{ASIN: "A1", SKU: "S1"},
			wantKey: "A1",
		},
		{
			name:        "explicit gap and leading flag",
			n:           ChangeNotification{SKU: "S1", GapPct: &gap, IsLeading: &leading},
			wantKey:     "S1",
			wantGap:     12.5,
			wantLeading: true,
		},
		{
			name:        "buy box share implies leading",
			n:           ChangeNotification{SKU: "S1", BuyBoxPercentage: &bb},
			wantKey:     "S1",
			wantLeading: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.n.ResolveSubjectKey())
			assert.InDelta(t, tt.wantGap, tt.n.GapPercentage(), 0.0001)
			assert.Equal(t, tt.wantLeading, tt.n.Leading())
		})
	}
}

func TestValidateNotification(t *testing.T) {
	now := time.Now()

	assert.Error(t, ValidateNotification(nil))
	assert.Error(t, ValidateNotification(&ChangeNotification{EventTime: now}))
	assert.Error(t, ValidateNotification(&ChangeNotification{ASIN: "A1"}))
	assert.Error(t, ValidateNotification(&ChangeNotification{ASIN: "A1", EventTime: now, CompetitorCount: -1}))
	assert.NoError(t, ValidateNotification(&ChangeNotification{ASIN: "A1", EventTime: now}))
}
