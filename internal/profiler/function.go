package profiler

import "fmt"

// Address is a VM code offset (function entry point) or a VM stack offset
// (frame pointer).
type Address uint64

// Kind classifies a profiled function.
type Kind uint8

const (
	// KindNormal is an ordinary bytecode function.
	KindNormal Kind = iota
	// KindPublic is a function exported by the script and callable by the host.
	KindPublic
	// KindNative is a host function called from the script.
	KindNative
	// KindMain is the script's main entry point.
	KindMain
)

// String returns the lower-case kind name used in reports.
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindPublic:
		return "public"
	case KindNative:
		return "native"
	case KindMain:
		return "main"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "normal", "":
		return KindNormal, nil
	case "public":
		return KindPublic, nil
	case "native":
		return KindNative, nil
	case "main":
		return KindMain, nil
	default:
		return KindNormal, fmt.Errorf("unknown function kind %q", s)
	}
}

// Function identifies a profilable routine. Values are immutable once created
// by Statistics.
type Function struct {
	Address Address
	Name    string
	Kind    Kind
}

// AnonymousName is the name given to a function without symbol information.
func AnonymousName(address Address) string {
	return fmt.Sprintf("0x%08X", uint64(address))
}
