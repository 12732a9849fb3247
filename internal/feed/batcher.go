package feed

import "strings"

// DefaultBatchSize is the most addresses the feed accepts in one SUBSCRIBE_TXS query.
const DefaultBatchSize = 100

// Batcher splits entity addresses into SUBSCRIBE_TXS requests.
type Batcher struct {
	Size int
}

// NewBatcher returns a batcher with the given group size, falling back to DefaultBatchSize.
func NewBatcher(size int) Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return Batcher{Size: size}
}

// BuildRequests partitions ids into contiguous groups of at most Size, keeping
// input order, and returns one request per group. Empty input yields nil.
func (b Batcher) BuildRequests(ids []string) []Request {
	if len(ids) == 0 {
		return nil
	}
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}

	reqs := make([]Request, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		reqs = append(reqs, Request{
			Type: TypeSubscribeTxs,
			Data: &TxsFilter{
				QueryType: QueryTypeComplex,
				Query:     Query(ids[start:end]),
				Size:      end - start,
			},
		})
	}
	return reqs
}

// Query joins "address = X" terms with OR.
func Query(group []string) string {
	var sb strings.Builder
	for i, id := range group {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("address = ")
		sb.WriteString(id)
	}
	return sb.String()
}
