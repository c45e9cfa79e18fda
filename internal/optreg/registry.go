// Package optreg is the static option registry (spec component C2):
// symbolic option name -> (phase, value type, optional enum map). It is
// deliberately free of cgo so the phase rules and value parsing can be unit
// tested without linking against libsrt; the root package pairs each Name
// here with the real SRT numeric option symbol.
package optreg

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase is the lifecycle stage at which an option may legally be applied.
// Prebind is a stricter subset of Pre (both must be set before the socket
// is bound/connected/listened on); the registry keeps them distinct because
// the teacher's SRT build refuses Prebind options once a socket is bound,
// even though both are driven by the same apply_pre call.
type Phase int

const (
	Prebind Phase = iota
	Pre
	Post
)

func (p Phase) String() string {
	switch p {
	case Prebind:
		return "prebind"
	case Pre:
		return "pre"
	default:
		return "post"
	}
}

// Type is the value encoding an option expects.
type Type int

const (
	TString Type = iota
	TInt32
	TInt64
	TBool
	TEnum
)

// Spec is one immutable registry entry.
type Spec struct {
	Name  string
	Phase Phase
	Type  Type
	Enum  map[string]int // non-nil only when Type == TEnum
}

// PreOptions is pre_options from spec.md §4.2: the Prebind and Pre phase
// options, in the exact order apply_pre must invoke SRT setters.
var PreOptions []Spec

// PostOptions is post_options: the Post phase options plus the
// always-legal runtime toggles, in the exact order apply_post must invoke
// SRT setters.
var PostOptions []Spec

var byName = map[string]*Spec{}

func define(specs []Spec, into *[]Spec) {
	for i := range specs {
		*into = append(*into, specs[i])
		byName[specs[i].Name] = &(*into)[len(*into)-1]
	}
}

func init() {
	define([]Spec{
		// Prebind: buffer sizing and bind-time socket shape.
		{Name: "mss", Phase: Prebind, Type: TInt32},
		{Name: "sndbuf", Phase: Prebind, Type: TInt32},
		{Name: "rcvbuf", Phase: Prebind, Type: TInt32},
		{Name: "udp_sndbuf", Phase: Prebind, Type: TInt32},
		{Name: "udp_rcvbuf", Phase: Prebind, Type: TInt32},
		{Name: "ipttl", Phase: Prebind, Type: TInt32},
		{Name: "iptos", Phase: Prebind, Type: TInt32},
		{Name: "ipv6only", Phase: Prebind, Type: TBool},
		{Name: "reuseaddr", Phase: Prebind, Type: TBool},
		{Name: "transtype", Phase: Prebind, Type: TEnum, Enum: map[string]int{"live": 0, "file": 1}},

		// Pre: handshake, encryption, connection negotiation.
		{Name: "fc", Phase: Pre, Type: TInt32},
		{Name: "sender", Phase: Pre, Type: TBool},
		{Name: "messageapi", Phase: Pre, Type: TBool},
		{Name: "tsbpdmode", Phase: Pre, Type: TBool},
		{Name: "tlpktdrop", Phase: Pre, Type: TBool},
		{Name: "nakreport", Phase: Pre, Type: TBool},
		{Name: "latency", Phase: Pre, Type: TInt32},
		{Name: "rcvlatency", Phase: Pre, Type: TInt32},
		{Name: "peerlatency", Phase: Pre, Type: TInt32},
		{Name: "conntimeo", Phase: Pre, Type: TInt32},
		{Name: "peeridletimeo", Phase: Pre, Type: TInt32},
		{Name: "pbkeylen", Phase: Pre, Type: TInt32},
		{Name: "passphrase", Phase: Pre, Type: TString},
		{Name: "kmrefreshrate", Phase: Pre, Type: TInt32},
		{Name: "kmpreannounce", Phase: Pre, Type: TInt32},
		{Name: "enforcedencryption", Phase: Pre, Type: TBool},
		{Name: "minversion", Phase: Pre, Type: TInt32},
		{Name: "streamid", Phase: Pre, Type: TString},
		{Name: "congestion", Phase: Pre, Type: TString},
		{Name: "payloadsize", Phase: Pre, Type: TInt32},
		{Name: "packetfilter", Phase: Pre, Type: TString},
		{Name: "retransmitalgo", Phase: Pre, Type: TEnum, Enum: map[string]int{"latency-based": 0, "fastrexmit": 1}},
	}, &PreOptions)

	define([]Spec{
		{Name: "maxbw", Phase: Post, Type: TInt64},
		{Name: "inputbw", Phase: Post, Type: TInt64},
		{Name: "mininputbw", Phase: Post, Type: TInt64},
		{Name: "oheadbw", Phase: Post, Type: TInt32},
		{Name: "snddropdelay", Phase: Post, Type: TInt32},
		{Name: "drifttracer", Phase: Post, Type: TBool},
		{Name: "lossmaxttl", Phase: Post, Type: TInt32},

		// Special-cased by the root package: applied through SRT's struct
		// linger rather than a scalar setter.
		{Name: "linger", Phase: Post, Type: TInt32},

		// Always-legal runtime toggles (spec.md §4.2).
		{Name: "rcvsyn", Phase: Post, Type: TBool},
		{Name: "sndsyn", Phase: Post, Type: TBool},
		{Name: "rcvtimeo", Phase: Post, Type: TInt32},
		{Name: "sndtimeo", Phase: Post, Type: TInt32},
	}, &PostOptions)
}

// Lookup returns the registry entry for name, or false if name is unknown.
func Lookup(name string) (Spec, bool) {
	spec, ok := byName[name]
	if !ok {
		return Spec{}, false
	}
	return *spec, true
}

// ParseBool implements spec.md §4.2's case-sensitive lower-case bool rule.
func ParseBool(val string) (bool, error) {
	switch val {
	case "1", "yes", "on", "true":
		return true, nil
	case "0", "no", "off", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", val)
	}
}

// ParseInt accepts decimal, 0x-prefixed hex, or 0-prefixed octal, per
// spec.md §4.2.
func ParseInt(val string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(val), 0, 64)
}

// ParseEnum consults spec's string map first, falling back to a decimal or
// hex integer parse if the literal isn't a known enum name.
func ParseEnum(spec Spec, val string) (int, error) {
	if spec.Enum != nil {
		if n, ok := spec.Enum[val]; ok {
			return n, nil
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(val), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("value %q is neither a known name for %q nor an integer", val, spec.Name)
	}
	return int(n), nil
}

// SplitAssignment parses the "k=v" textual form from spec.md §6. Tuples
// passed as (name, value) bypass this and call Set directly.
func SplitAssignment(kv string) (name, value string, err error) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("option assignment %q is missing '='", kv)
	}
	return kv[:idx], kv[idx+1:], nil
}
