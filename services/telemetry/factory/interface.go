package factory

import "context"

// Server defines the operation of an entity able to serve requests
type Server interface {
	Start()
	Address() string
	Close() error
}

// Runner defines the scheduling tick operations
type Runner interface {
	Process(ctx context.Context)
	IsInterfaceNil() bool
}
