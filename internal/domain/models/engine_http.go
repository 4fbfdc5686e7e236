package models

// Requests for engine observability HTTP endpoints. Defined in domain for
// consistency and reuse.

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 4h"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type VetoBreakdownRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 4h"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}
