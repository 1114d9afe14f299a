package cel

var FilterExpressionExamples = map[string]string{
	"event_type_equals":   `event_type == "ANY_OFFER_CHANGED"`,
	"event_type_in_list":  `event_type in ["ANY_OFFER_CHANGED", "PRICING_HEALTH", "BUY_BOX_CHANGED"]`,
	"marketplace":         `has(payload.marketplace) && payload.marketplace == "ATVPDKIKX0DER"`,
	"competitors_present": `has(payload.competitor_count) && payload.competitor_count > 0`,
	"subject_prefix":      `subject_key.startsWith("B0")`,
	"recent_only":         `event_time > timestamp("2024-01-01T00:00:00Z")`,
	"combined_conditions": `event_type == "ANY_OFFER_CHANGED" && has(payload.our_price) && payload.our_price > 0.0`,
}
