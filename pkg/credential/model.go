package credential

// Scope is a persistence lifetime for stored credentials.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeDurable
	ScopeTransient
)

func (s Scope) String() string {
	switch s {
	case ScopeDurable:
		return "durable"
	case ScopeTransient:
		return "transient"
	default:
		return "none"
	}
}

// Pair is the short-lived access token together with the longer-lived renewal token.
// Both are always written and cleared together.
type Pair struct {
	AccessToken  string
	RenewalToken string
}

// Complete reports whether both halves of the pair are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RenewalToken != ""
}

// Credentials is a stored pair with the data kept next to it.
type Credentials struct {
	Pair

	DisplayName string
	Scope       Scope // Scope the pair was read from
}
