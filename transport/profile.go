package transport

import (
	"fmt"
	"sync"

	"github.com/axmq/uapubsub/status"
)

// Profile URIs, one per supported transport (spec.md §6).
const (
	ProfileUDPUADP      = "http://opcfoundation.org/UA-Profile/Transport/pubsub-udp-uadp"
	ProfileEthernetUADP = "http://opcfoundation.org/UA-Profile/Transport/pubsub-eth-uadp"
	ProfileMQTTUADP     = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-uadp"
	ProfileMQTTJSON     = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-json"
)

// BindRequest describes what a Connection or ReaderGroup is asking a
// Profile to bind.
type BindRequest struct {
	Address  string
	Settings map[string]string // transport-specific key/value properties
	QueueName string           // MQTT broker-transport-settings "queueName"
	GroupLevel bool            // true when a ReaderGroup needs its own recv channel
}

// BindResult is what a successful Bind call produces.
type BindResult struct {
	Send *Channel   // nil when binding only a group-level receive channel
	Recv []*Channel
}

// Profile binds channels for one transport profile URI.
type Profile interface {
	URI() string
	IsMQTT() bool
	Bind(loop EventLoop, req BindRequest) (*BindResult, *status.Error)
}

type udpProfile struct{ uri string }

func (p udpProfile) URI() string  { return p.uri }
func (p udpProfile) IsMQTT() bool { return false }

func (p udpProfile) Bind(_ EventLoop, req BindRequest) (*BindResult, *status.Error) {
	if req.Address == "" {
		return nil, status.New(status.InvalidArgument, "transport: missing address")
	}
	result := &BindResult{}
	if !req.GroupLevel {
		result.Send = NewChannel(req.Address+"#send", RoleSend)
		result.Send.MarkOpen()
	}
	recv := NewChannel(req.Address+"#recv", RoleReceive)
	recv.MarkOpen()
	result.Recv = []*Channel{recv}
	return result, nil
}

type mqttProfile struct{ uri string }

func (p mqttProfile) URI() string  { return p.uri }
func (p mqttProfile) IsMQTT() bool { return true }

func (p mqttProfile) Bind(_ EventLoop, req BindRequest) (*BindResult, *status.Error) {
	if req.Address == "" {
		return nil, status.New(status.InvalidArgument, "transport: missing broker address")
	}
	if req.GroupLevel && req.QueueName == "" {
		return nil, status.New(status.InvalidArgument, "transport: MQTT ReaderGroup requires queueName")
	}

	result := &BindResult{}
	if !req.GroupLevel {
		result.Send = NewChannel(req.Address+"#pub", RoleSend)
		result.Send.MarkOpen()
		return result, nil
	}

	recv := NewChannel(fmt.Sprintf("%s#%s", req.Address, req.QueueName), RoleReceive)
	recv.MarkOpen()
	result.Recv = []*Channel{recv}
	return result, nil
}

// Registry resolves a transport profile URI to its Profile implementation.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns a Registry pre-populated with the four profiles
// spec.md §6 names.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	r.Register(udpProfile{uri: ProfileUDPUADP})
	r.Register(udpProfile{uri: ProfileEthernetUADP})
	r.Register(mqttProfile{uri: ProfileMQTTUADP})
	r.Register(mqttProfile{uri: ProfileMQTTJSON})
	return r
}

// Register adds or replaces a profile, allowing custom transports beyond
// the four built in.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.URI()] = p
}

// Resolve looks up a profile by URI.
func (r *Registry) Resolve(uri string) (Profile, *status.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[uri]
	if !ok {
		return nil, status.New(status.NotSupported, "transport: unknown transport profile "+uri)
	}
	return p, nil
}
