// Package taxflow is the property-tax function and workflow execution engine
package taxflow

const (
	// Name is the service name reported in logs and health responses
	Name = "taxflow"

	// Version is the current release of the engine
	Version = "0.4.2"
)
