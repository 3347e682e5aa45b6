// Package policy implements the pure access-decision core: pattern
// matching over colon-delimited action/resource strings and the
// deny-overrides-allow combination rule. The package performs no I/O.
package policy

// Effect is a policy's stance.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Valid reports whether the effect is one of the two known values.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Policy is a versioned statement granting or denying a set of action
// patterns over a set of resource patterns. Conditions are persisted but
// not evaluated by the core; the field is reserved.
type Policy struct {
	ID          string         `json:"id"`
	Version     string         `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Effect      Effect         `json:"effect"`
	Actions     []string       `json:"actions"`
	Resources   []string       `json:"resources"`
	Conditions  map[string]any `json:"conditions,omitempty"`
}

// Decision is the outcome of an evaluation together with the ids of every
// applicable policy that determined it.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Matched []string `json:"matched"`
}
