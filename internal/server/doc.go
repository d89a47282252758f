// Package server implements the HTTP API of the execution engine
//
// This package provides REST endpoints for registering and calling
// functions, registering and executing workflows, reading executions, and a
// WebSocket stream of execution events
package server
