package registry

// Service is the interface for every long-running component the tracker
// process starts and stops.
type Service interface {
	Start() error
	Stop() error
}
