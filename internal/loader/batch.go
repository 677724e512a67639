package loader

import "iter"

// Batches groups seq into slices of at most size items. Every yielded batch
// holds only real items; the final one is short when seq runs out. An error
// from seq is yielded on its own and ends the sequence, so items collected
// since the previous batch are never handed on.
func Batches[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		batch := make([]T, 0, size)

		for item, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}

			batch = append(batch, item)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]T, 0, size)
			}
		}

		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}
