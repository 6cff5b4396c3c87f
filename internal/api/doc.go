// Package api exposes the REST interface for submitting batched calls and
// inspecting their dispatch status.
package api
