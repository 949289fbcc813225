package instance

import "os"

// EnvWorkerID overrides the instance identifier reported by workers.
const EnvWorkerID = "STOREFRONT_WORKER_ID"

const fallbackID = "worker-0"

// GetID returns the worker instance identifier. It prefers the explicit
// override, then the host name, then a fixed default.
func GetID() string {
	if id := os.Getenv(EnvWorkerID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
