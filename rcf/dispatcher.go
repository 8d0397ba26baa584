package rcf

import (
	"context"
	"fmt"
	"sync"
)

// MethodHandler implements one bound method of an interface (spec.md section
// 4.B Interface binding): it unmarshals its own argument type from raw,
// invokes application logic, and marshals its own result type back.
type MethodHandler func(ctx context.Context, archive Archive, raw []byte) ([]byte, error)

// InterfaceBinding is a named collection of MethodHandlers keyed by method
// id, the unit a Dispatcher registers and a ClientStub addresses by name.
type InterfaceBinding struct {
	Name    string
	Methods map[uint32]MethodHandler
}

// NewInterfaceBinding creates an empty, named InterfaceBinding.
func NewInterfaceBinding(name string) *InterfaceBinding {
	return &InterfaceBinding{Name: name, Methods: make(map[uint32]MethodHandler)}
}

// Bind registers h as methodID's handler.
func (b *InterfaceBinding) Bind(methodID uint32, h MethodHandler) {
	b.Methods[methodID] = h
}

// Dispatcher is RCF's service registry (spec.md section 4.B/4.G): it maps
// (interfaceName, methodID) to a bound MethodHandler. Grounded on
// pkg/wstchannel/channel_provider_registry.go's Register(name, provider)
// pattern — the teacher's own later evolution toward a pluggable registry —
// adapted here from channel-provider registration to interface/method-id
// binding.
type Dispatcher struct {
	lock       sync.RWMutex
	interfaces map[string]*InterfaceBinding
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{interfaces: make(map[string]*InterfaceBinding)}
}

// Register adds or replaces binding under its own name.
func (d *Dispatcher) Register(binding *InterfaceBinding) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.interfaces[binding.Name] = binding
}

// Unregister removes the named interface binding, if present.
func (d *Dispatcher) Unregister(name string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.interfaces, name)
}

// Dispatch looks up and invokes the handler for (interfaceName, methodID),
// producing a ProtocolError RemoteError for an unknown interface or method
// id (spec.md section 7).
func (d *Dispatcher) Dispatch(ctx context.Context, interfaceName string, methodID uint32, archive Archive, raw []byte) ([]byte, error) {
	d.lock.RLock()
	binding, ok := d.interfaces[interfaceName]
	d.lock.RUnlock()
	if !ok {
		return nil, NewRemoteError(ErrorKindProtocol, fmt.Errorf("unknown interface %q", interfaceName))
	}
	handler, ok := binding.Methods[methodID]
	if !ok {
		return nil, NewRemoteError(ErrorKindProtocol, fmt.Errorf("unknown method id %d on interface %q", methodID, interfaceName))
	}
	return handler(ctx, archive, raw)
}
