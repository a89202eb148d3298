package ice

import "testing"

func TestFindAttrAndHasAttr(t *testing.T) {
	attrs := []StunAttribute{
		{Type: AttrUsername, Value: []byte("user")},
		{Type: AttrPriority, Value: []byte{0, 0, 0, 42}},
	}
	got, ok := FindAttr(attrs, AttrPriority)
	if !ok || Uint32Value(got) != 42 {
		t.Fatalf("FindAttr(PRIORITY) = (%+v, %v)", got, ok)
	}
	if !HasAttr(attrs, AttrUsername) {
		t.Error("expected HasAttr to find USERNAME")
	}
	if HasAttr(attrs, AttrFingerprint) {
		t.Error("expected HasAttr to not find an absent attribute")
	}
}

func TestUint32ValueRejectsWrongLength(t *testing.T) {
	a := StunAttribute{Value: []byte{1, 2, 3}}
	if Uint32Value(a) != 0 {
		t.Error("expected a short value to decode to 0")
	}
}

func TestUint64ValueRoundTrip(t *testing.T) {
	a := uint64Attr(AttrICEControlling, 0x0102030405060708)
	if Uint64Value(a) != 0x0102030405060708 {
		t.Errorf("got %x, want %x", Uint64Value(a), uint64(0x0102030405060708))
	}
}

func TestPriorityAttrAndControlAttrs(t *testing.T) {
	p := PriorityAttr(12345)
	if p.Type != AttrPriority || Uint32Value(p) != 12345 {
		t.Errorf("unexpected PriorityAttr %+v", p)
	}

	c := ControllingAttr(99)
	if c.Type != AttrICEControlling || Uint64Value(c) != 99 {
		t.Errorf("unexpected ControllingAttr %+v", c)
	}

	d := ControlledAttr(77)
	if d.Type != AttrICEControlled || Uint64Value(d) != 77 {
		t.Errorf("unexpected ControlledAttr %+v", d)
	}
}

func TestUseCandidateAttrIsZeroLength(t *testing.T) {
	a := UseCandidateAttr()
	if a.Type != AttrUseCandidate || len(a.Value) != 0 {
		t.Errorf("unexpected UseCandidateAttr %+v", a)
	}
}

func TestUsernameAttrFollowsResponderRequesterOrder(t *testing.T) {
	a := UsernameAttr("local", "remote")
	if string(a.Value) != "remote:local" {
		t.Errorf("got %q, want %q", a.Value, "remote:local")
	}
}
