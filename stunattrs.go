package ice

import "encoding/binary"

// STUN/ICE attribute type codes, RFC 5389 Section 18.2 and RFC 8445
// Section 16.1. Declared here (instead of importing gortc.io/stun
// directly) so the data-model and agent packages can build attribute
// bundles without depending on the concrete wire codec; package
// stunstack maps these onto gortc.io/stun's stun.AttrType when framing
// the actual message.
//
// Grounded on vendor/github.com/gortc/ice/icecontrol.go and priority.go,
// which add these same attributes via AddTo/GetFrom pairs keyed on
// stun.AttrPriority / stun.AttrICEControlled / stun.AttrICEControlling.
const (
	AttrUsername        uint16 = 0x0006
	AttrMessageIntegrity uint16 = 0x0008
	AttrPriority        uint16 = 0x0024
	AttrUseCandidate    uint16 = 0x0025
	AttrICEControlled   uint16 = 0x8029
	AttrICEControlling  uint16 = 0x802A
	AttrXORMappedAddress uint16 = 0x0020
	AttrFingerprint     uint16 = 0x8028
)

func uint32Attr(t uint16, v uint32) StunAttribute {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return StunAttribute{Type: t, Value: b}
}

func uint64Attr(t uint16, v uint64) StunAttribute {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return StunAttribute{Type: t, Value: b}
}

// PriorityAttr builds the PRIORITY attribute carrying the priority this
// candidate would have if it were peer-reflexive, RFC 8445 Section 7.1.1.
func PriorityAttr(v uint32) StunAttribute { return uint32Attr(AttrPriority, v) }

// ControllingAttr builds ICE-CONTROLLING carrying the agent's tie-breaker.
func ControllingAttr(tieBreaker uint64) StunAttribute {
	return uint64Attr(AttrICEControlling, tieBreaker)
}

// ControlledAttr builds ICE-CONTROLLED carrying the agent's tie-breaker.
func ControlledAttr(tieBreaker uint64) StunAttribute {
	return uint64Attr(AttrICEControlled, tieBreaker)
}

// UseCandidateAttr builds the zero-length USE-CANDIDATE attribute.
func UseCandidateAttr() StunAttribute { return StunAttribute{Type: AttrUseCandidate} }

// UsernameAttr builds USERNAME as "<remoteUfrag>:<localUfrag>".
func UsernameAttr(localUfrag, remoteUfrag string) StunAttribute {
	return StunAttribute{Type: AttrUsername, Value: []byte(Username(localUfrag, remoteUfrag))}
}

// FindAttr returns the first attribute of type t, if present.
func FindAttr(attrs []StunAttribute, t uint16) (StunAttribute, bool) {
	for _, a := range attrs {
		if a.Type == t {
			return a, true
		}
	}
	return StunAttribute{}, false
}

// HasAttr reports whether attrs contains an attribute of type t.
func HasAttr(attrs []StunAttribute, t uint16) bool {
	_, ok := FindAttr(attrs, t)
	return ok
}

// Uint32Value decodes a big-endian uint32 attribute value.
func Uint32Value(a StunAttribute) uint32 {
	if len(a.Value) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(a.Value)
}

// Uint64Value decodes a big-endian uint64 attribute value.
func Uint64Value(a StunAttribute) uint64 {
	if len(a.Value) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(a.Value)
}
