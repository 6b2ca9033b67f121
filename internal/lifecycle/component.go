package lifecycle

import "context"

// Component is anything the manager starts and stops in order: the event
// store, the graph watcher, the API server.
type Component interface {
	// Start brings the component up. It must be safe to call once per
	// manager run and should return promptly; long-running work belongs
	// in a goroutine the component owns. The context carries the startup
	// deadline.
	Start(ctx context.Context) error

	// Stop shuts the component down, finishing in-flight work within the
	// context deadline. A Stop error is reported but does not prevent the
	// remaining components from stopping.
	Stop(ctx context.Context) error

	// Name identifies the component in logs and dependency declarations
	Name() string
}
