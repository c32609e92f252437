package vaultcore

// WaitFor resolves when pred first returns a non-nil *R. It checks eagerly,
// subscribes, re-checks once after subscribing (closing the race between
// the first check and the subscription taking effect), and on resolution
// removes the listener before delivering the result.
//
// If pred calls Mutate internally, it must return nil without calling
// notify when it would not produce the witnessed value, to avoid infinite
// recursion.
func WaitFor[R any](s *Store, events []Event, pred func() *R) R {
	if res := pred(); res != nil {
		return *res
	}

	id := s.GetNextID()

	done := make(chan R, 1)

	var delivered bool

	s.On(id, events, func() {
		if delivered {
			return
		}

		if res := pred(); res != nil {
			delivered = true

			s.RemoveListener(id)
			done <- *res
		}
	})

	// Re-check once more now that the listener is installed, to close the
	// race where the awaited condition became true between the first
	// check and subscribing.
	if res := pred(); res != nil && !delivered {
		delivered = true

		s.RemoveListener(id)

		return *res
	}

	return <-done
}
