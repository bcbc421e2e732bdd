package resource

import "testing"

func TestKindOf_RoundTrip(t *testing.T) {
	for _, k := range All() {
		topic := k.Topic()
		if topic == "" {
			t.Fatalf("%v.Topic() is empty", k)
		}
		if got := KindOf(topic); got != k {
			t.Errorf("KindOf(%q) = %v, want %v", topic, got, k)
		}
		if got := KindOf(topic).Topic(); got != topic {
			t.Errorf("KindOf(%q).Topic() = %q, want %q", topic, got, topic)
		}
	}
}

func TestKindOf_TopicsAreUnique(t *testing.T) {
	seen := make(map[string]Kind)
	for _, k := range All() {
		if prev, dup := seen[k.Topic()]; dup {
			t.Errorf("%v and %v share topic %q", prev, k, k.Topic())
		}
		seen[k.Topic()] = k
	}
}

func TestKindOf_Unrecognized(t *testing.T) {
	tests := []string{
		"",
		"PIOT",
		"PIOT/ConstrainedDevice",
		"piot/constraineddevice/sensormsg",
		"PIOT/ConstrainedDevice/SensorMsg/extra",
		"/PIOT/ConstrainedDevice/SensorMsg",
		"some/random/topic",
	}

	for _, topic := range tests {
		if got := KindOf(topic); got != Unrecognized {
			t.Errorf("KindOf(%q) = %v, want Unrecognized", topic, got)
		}
	}
}

func TestKind_Accessors(t *testing.T) {
	k := ConstrainedSensorMsg

	if k.Topic() != "PIOT/ConstrainedDevice/SensorMsg" {
		t.Errorf("Topic() = %q", k.Topic())
	}
	if k.Name() != NameSensorMsg {
		t.Errorf("Name() = %q, want %q", k.Name(), NameSensorMsg)
	}
	if k.Scope() != ScopeConstrained {
		t.Errorf("Scope() = %q, want %q", k.Scope(), ScopeConstrained)
	}
	if k.String() != "ConstrainedDevice/SensorMsg" {
		t.Errorf("String() = %q", k.String())
	}
}

func TestUnrecognized_Accessors(t *testing.T) {
	if Unrecognized.Valid() {
		t.Error("Unrecognized.Valid() = true")
	}
	if Unrecognized.Topic() != "" {
		t.Errorf("Unrecognized.Topic() = %q, want empty", Unrecognized.Topic())
	}
	if Unrecognized.String() != "Unrecognized" {
		t.Errorf("Unrecognized.String() = %q", Unrecognized.String())
	}
	if Kind(999).Valid() {
		t.Error("Kind(999).Valid() = true")
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"PIOT/GatewayDevice/SystemPerfMsg", GatewaySystemPerf},
		{"GatewayDevice/SystemPerfMsg", GatewaySystemPerf},
		{"/ConstrainedDevice/ActuatorCmd", ConstrainedActuatorCmd},
		{"ActuatorCmd", Unrecognized},
		{"", Unrecognized},
	}

	for _, tt := range tests {
		if got := Lookup(tt.path); got != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAll_Count(t *testing.T) {
	if got := len(All()); got != len(table) {
		t.Errorf("len(All()) = %d, want %d", got, len(table))
	}
}
