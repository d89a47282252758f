// Package api defines the core data types shared by the execution engine
//
// This package contains the function and workflow definition types, the
// tagged parameter union used to bind step inputs, execution records, the
// error taxonomy, and the request/response messages exchanged with the
// invocation surfaces
package api
