// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, shared by every instance behind the load balancer
//   - memory: in-process fan-out for a single instance and for tests
package events
