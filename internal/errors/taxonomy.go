package errors

// Error categories shared by the storage, generation and pipeline layers. Wrap them with [Wrap] to add context and
// detect them with [Is].
var (
	// ErrNotFound signals that a requested project, chapter, card or artifact does not exist.
	ErrNotFound = NewSentinel("not found")
	// ErrValidation signals malformed identifiers or structures that violate their schema.
	ErrValidation = NewSentinel("validation failed")
	// ErrProvider signals that the generation capability failed. Retrying the same stage is safe.
	ErrProvider = NewSentinel("provider failure")
	// ErrStorage signals a durable read or write failure.
	ErrStorage = NewSentinel("storage failure")
	// ErrPipelineBusy signals that the chapter pipeline is already running.
	ErrPipelineBusy = NewSentinel("pipeline busy")
)

// Mark wraps err so that it matches the category sentinel with [Is] while keeping the original chain intact.
func Mark(err, category error) error {
	if err == nil {
		return nil
	}
	if Is(err, category) {
		return err
	}
	return &categorized{err: err, category: category}
}

type categorized struct {
	err      error
	category error
}

func (c *categorized) Error() string {
	return c.err.Error()
}

func (c *categorized) Unwrap() []error {
	return []error{c.err, c.category}
}
