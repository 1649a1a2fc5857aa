package registry

// Service is the lifecycle interface every gateway service implements.
type Service interface {
	Start() error
	Stop() error
}
