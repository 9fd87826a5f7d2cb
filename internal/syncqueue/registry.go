package syncqueue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/offline-pos/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (Mutation, error)

type registryKey struct {
	kind    enums.MutationType
	version int
}

// DecoderRegistry maps (mutation type, payload version) to a decoder so old
// envelopes stay readable after the payload shape changes.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultRegistry knows every variant at PayloadVersion.
func DefaultRegistry() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.MutationTransaction, 1, decodeInto[TransactionMutation])
	r.Register(enums.MutationCustomer, 1, decodeInto[CustomerMutation])
	r.Register(enums.MutationProduct, 1, decodeInto[ProductMutation])
	return r
}

func (r *DecoderRegistry) Register(kind enums.MutationType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{kind: kind, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(kind enums.MutationType, version int, payload json.RawMessage) (Mutation, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{kind: kind, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", kind, version)
}

func decodeInto[T Mutation](payload json.RawMessage) (Mutation, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	if out.AggregateID() == "" {
		return nil, fmt.Errorf("%s payload has no aggregate id", out.Kind())
	}
	return out, nil
}
