package warehouse

// maxBatchRows is the hard ceiling on rows per batched statement; larger
// sets are split across multiple statements.
const maxBatchRows = 1000

// chunk splits items into slices of at most maxBatchRows.
func chunk[T any](items []T) [][]T {
	if len(items) == 0 {
		return nil
	}
	var out [][]T
	for start := 0; start < len(items); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
