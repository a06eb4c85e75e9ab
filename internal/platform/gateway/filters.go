package gateway

// TagFilter is one conjunctive constraint of a gateway query: the named tag
// must carry one of the listed values. Filters are an ordered list with the
// most selective constraint first; gateways evaluate them in order, so
// putting the near-unique correlation key ahead of broad constraints like
// Action keeps queries cheap.
type TagFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// SwapConfirmationFilters matches the pool's outbound transfer caused by the
// submitted transfer id.
func SwapConfirmationFilters(transferID, poolID string) []TagFilter {
	return []TagFilter{
		{Name: "Pushed-For", Values: []string{transferID}},
		{Name: "From-Process", Values: []string{poolID}},
		{Name: "Action", Values: []string{"Transfer"}},
	}
}

// OrderUpdateFilters matches order-lifecycle messages emitted by the market
// process for the order created by the submitted message id.
func OrderUpdateFilters(orderID, marketID string) []TagFilter {
	return []TagFilter{
		{Name: "X-Order-Id", Values: []string{orderID}},
		{Name: "From-Process", Values: []string{marketID}},
	}
}

// PushedForFilters matches any message the given process emitted as an
// effect of the submitted message id.
func PushedForFilters(messageID, fromProcess string) []TagFilter {
	return []TagFilter{
		{Name: "Pushed-For", Values: []string{messageID}},
		{Name: "From-Process", Values: []string{fromProcess}},
	}
}
