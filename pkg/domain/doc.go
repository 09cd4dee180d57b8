// Package domain holds the value types shared by the generation service:
// requests, results, history records, lifecycle events and sentinel errors.
package domain
