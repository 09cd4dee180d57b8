// Package grpc exposes the standard grpc.health.v1 service so load balancers
// can route only to instances whose pipeline has finished loading.
package grpc
