package dispatch

// Stats counts what a Dispatcher has done since it was created.
type Stats struct {
	Dispatches int
	// Sequential is how many dispatches ran in-process.
	Sequential int
	Spawned    int
	Reaped     int
	// MaxLive is the highest number of workers alive at once.
	MaxLive int

	// LastSubChunks holds the sub-chunk sizes of the most recent parallel
	// dispatch in spawn order.
	LastSubChunks []int
	// LastPIDs holds the worker PIDs of the most recent parallel dispatch in
	// spawn order.
	LastPIDs []int
}

func (s Stats) clone() Stats {
	s.LastSubChunks = append([]int(nil), s.LastSubChunks...)
	s.LastPIDs = append([]int(nil), s.LastPIDs...)
	return s
}
