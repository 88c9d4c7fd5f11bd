package transport

// Flag selects how a packet is delivered.
type Flag int

const (
	// FlagReliable packets arrive once and in order per channel.
	FlagReliable Flag = iota
	// FlagUnreliable packets may be lost; late packets are dropped so
	// delivery stays in order per channel.
	FlagUnreliable
	// FlagUnsequenced packets may be lost or arrive in any order.
	FlagUnsequenced
)

// ParseFlag maps the boundary flag names. Unknown names mean reliable.
func ParseFlag(s string) Flag {
	switch s {
	case "unreliable":
		return FlagUnreliable
	case "unsequenced":
		return FlagUnsequenced
	}
	return FlagReliable
}

func (f Flag) String() string {
	switch f {
	case FlagUnreliable:
		return "unreliable"
	case FlagUnsequenced:
		return "unsequenced"
	}
	return "reliable"
}

// Datagram reports whether the flag is carried outside the reliable stream.
func (f Flag) Datagram() bool {
	return f == FlagUnreliable || f == FlagUnsequenced
}
