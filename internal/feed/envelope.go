package feed

import (
	"strings"

	"tracker/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Inbound envelope types.
const (
	TypeTokenNewListingData = "TOKEN_NEW_LISTING_DATA"
	TypeTxsData             = "TXS_DATA"
)

// Codec decodes numbers as json.Number so integer timestamps and large
// amounts survive a decode/encode round trip unchanged.
var Codec = sonic.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Envelope is the outer discriminated message exchanged with the feed.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// DecodeEnvelope parses an inbound frame. Data keeps whatever shape the feed sent;
// an unknown or empty Type is not an error.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := Codec.Unmarshal(payload, &env); err != nil {
		return Envelope{}, errors.Wrap(exception.ErrFeedMalformedEnvelope, err.Error())
	}
	return env, nil
}

// ListingAddress extracts data.address from a new listing event.
func ListingAddress(data any) (string, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", errors.Wrapf(exception.ErrFeedMissingAddress, "data type: %T", data)
	}
	address, _ := m["address"].(string)
	address = strings.TrimSpace(address)
	if address == "" {
		return "", exception.ErrFeedMissingAddress
	}
	return address, nil
}
