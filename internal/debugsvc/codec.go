// Package debugsvc exposes a gRPC kernel-introspection service
// (process table and driver catalog snapshots) and a Forwarder that
// ships the same snapshots upstream with batching and backoff, the
// intake worker's shape generalized from resource deltas to kernel
// state.
package debugsvc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the debug service run over a real grpc.Server/
// grpc.ClientConn without generated protobuf stubs: every message on
// this service is a plain Go struct, marshaled as JSON instead of wire
// protobuf. grpc dispatches codecs by name per call via CallContentSubtype,
// so registering this one doesn't disturb any other service sharing the
// same process.
type jsonCodec struct{}

const codecName = "serena-debug-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("debugsvc: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("debugsvc: unmarshal into %T: %w", v, err)
	}
	return nil
}
