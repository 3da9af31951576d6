package metricsstore

// Pricing is a per-thousand-request rate card, in USD.
type Pricing struct {
	GetPerThousand    float64
	PutPerThousand    float64
	ListPerThousand   float64
	DeletePerThousand float64
}

// Cost computes the estimated USD cost of the given request counts under
// pricing. It is a pure function: no I/O, no package state, safe to call
// from anywhere without a Store.
func Cost(get, put, list, delete int64, pricing Pricing) float64 {
	return float64(get)*pricing.GetPerThousand/1000 +
		float64(put)*pricing.PutPerThousand/1000 +
		float64(list)*pricing.ListPerThousand/1000 +
		float64(delete)*pricing.DeletePerThousand/1000
}
