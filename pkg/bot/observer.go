package bot

// Observer receives session events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// ObservePoll is called once per poll with the number of records delivered.
	ObservePoll(delivered int)
	// ObserveFailure is called with one of the package failure kinds.
	ObserveFailure(kind error)
	// ObserveSend is called once per send helper with the attempts it took
	// and its final error, nil on success.
	ObserveSend(method string, attempts int, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(int)                {}
func (nopObserver) ObserveFailure(error)           {}
func (nopObserver) ObserveSend(string, int, error) {}
