// Package resource defines the closed set of logical channels the gateway
// routes, and their bijection with wire topic strings.
//
// Canonical topics have the form "PIOT/<Scope>/<Name>", for example
// "PIOT/ConstrainedDevice/SensorMsg". Any topic outside the table resolves
// to Unrecognized; lookups never fail.
package resource

import "strings"

// Kind identifies a logical data or command channel.
type Kind int

// Resource kinds. Unrecognized is the zero value so an unset Kind is never
// mistaken for a real channel.
const (
	Unrecognized Kind = iota
	ConstrainedSensorMsg
	ConstrainedActuatorCmd
	ConstrainedActuatorResponse
	ConstrainedSystemPerf
	ConstrainedMgmtStatusMsg
	ConstrainedMgmtStatusCmd
	GatewaySystemPerf
	GatewayMgmtStatusMsg
	CloudMgmtStatusMsg
	CloudMgmtStatusCmd
)

// Scope is the device tier a resource belongs to.
type Scope string

// Device scopes.
const (
	ScopeConstrained Scope = "ConstrainedDevice"
	ScopeGateway     Scope = "GatewayDevice"
	ScopeCloud       Scope = "CloudService"
)

// Resource names shared across scopes.
const (
	NameSensorMsg        = "SensorMsg"
	NameActuatorCmd      = "ActuatorCmd"
	NameActuatorResponse = "ActuatorResponse"
	NameSystemPerfMsg    = "SystemPerfMsg"
	NameMgmtStatusMsg    = "MgmtStatusMsg"
	NameMgmtStatusCmd    = "MgmtStatusCmd"
)

// topicRoot prefixes every canonical topic.
const topicRoot = "PIOT"

type entry struct {
	scope Scope
	name  string
}

var table = map[Kind]entry{
	ConstrainedSensorMsg:        {ScopeConstrained, NameSensorMsg},
	ConstrainedActuatorCmd:      {ScopeConstrained, NameActuatorCmd},
	ConstrainedActuatorResponse: {ScopeConstrained, NameActuatorResponse},
	ConstrainedSystemPerf:       {ScopeConstrained, NameSystemPerfMsg},
	ConstrainedMgmtStatusMsg:    {ScopeConstrained, NameMgmtStatusMsg},
	ConstrainedMgmtStatusCmd:    {ScopeConstrained, NameMgmtStatusCmd},
	GatewaySystemPerf:           {ScopeGateway, NameSystemPerfMsg},
	GatewayMgmtStatusMsg:        {ScopeGateway, NameMgmtStatusMsg},
	CloudMgmtStatusMsg:          {ScopeCloud, NameMgmtStatusMsg},
	CloudMgmtStatusCmd:          {ScopeCloud, NameMgmtStatusCmd},
}

// byTopic is the inverse of table, built once at init.
var byTopic = func() map[string]Kind {
	m := make(map[string]Kind, len(table))
	for k, e := range table {
		m[topicFor(e)] = k
	}
	return m
}()

func topicFor(e entry) string {
	return topicRoot + "/" + string(e.scope) + "/" + e.name
}

// KindOf resolves a wire topic to its Kind. Unknown topics, including
// case variants of known ones, return Unrecognized.
func KindOf(topic string) Kind {
	if k, ok := byTopic[topic]; ok {
		return k
	}
	return Unrecognized
}

// Lookup resolves either a canonical topic or a "<Scope>/<Name>" pair,
// ignoring a leading slash. It exists for callers that address resources
// by path rather than by full topic.
func Lookup(path string) Kind {
	path = strings.TrimPrefix(path, "/")
	if k := KindOf(path); k != Unrecognized {
		return k
	}
	return KindOf(topicRoot + "/" + path)
}

// Topic returns the canonical wire topic, or "" for Unrecognized.
func (k Kind) Topic() string {
	e, ok := table[k]
	if !ok {
		return ""
	}
	return topicFor(e)
}

// Name returns the scope-independent resource name, e.g. "SensorMsg".
func (k Kind) Name() string {
	return table[k].name
}

// Scope returns the device tier of the resource.
func (k Kind) Scope() Scope {
	return table[k].scope
}

// Valid reports whether k is a recognised resource.
func (k Kind) Valid() bool {
	_, ok := table[k]
	return ok
}

// String implements fmt.Stringer for logging.
func (k Kind) String() string {
	if !k.Valid() {
		return "Unrecognized"
	}
	return string(k.Scope()) + "/" + k.Name()
}

// All returns every recognised Kind in declaration order.
func All() []Kind {
	kinds := make([]Kind, 0, len(table))
	for k := ConstrainedSensorMsg; k <= CloudMgmtStatusCmd; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
