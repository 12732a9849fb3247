package feed

import "github.com/yanun0323/errors"

// Outbound directive types.
const (
	TypeSubscribeTokenNewListing = "SUBSCRIBE_TOKEN_NEW_LISTING"
	TypeSubscribeTxs             = "SUBSCRIBE_TXS"

	QueryTypeComplex = "complex"
)

// Request is an outbound subscription directive.
type Request struct {
	Type string     `json:"type"`
	Data *TxsFilter `json:"data,omitempty"`
}

// TxsFilter selects the transactions a SUBSCRIBE_TXS request covers.
type TxsFilter struct {
	QueryType string `json:"queryType"`
	Query     string `json:"query"`
	// Size is the number of entities the query covers; not sent on the wire.
	Size int `json:"-"`
}

// NewListingRequest is sent once per connection.
func NewListingRequest() Request {
	return Request{Type: TypeSubscribeTokenNewListing}
}

// Encode renders the request as a text frame payload.
func (r Request) Encode() ([]byte, error) {
	payload, err := Codec.Marshal(r)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s request", r.Type)
	}
	return payload, nil
}

// Entities reports how many entities the request subscribes.
func (r Request) Entities() int {
	if r.Data == nil {
		return 0
	}
	return r.Data.Size
}
