package profile

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidProfile is returned when a profile cannot be decoded or a merge would
// produce a profile without an identity.
var ErrInvalidProfile = errors.New("invalid user profile")

var knownKeys = [...]string{"id", "email", "username", "fullName", "role", "avatar", "points", "streak"}

// UserProfile is the identity of the signed-in user.
type UserProfile struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	FullName string  `json:"fullName"`
	Role     Role    `json:"role"`
	Avatar   *string `json:"avatar,omitempty"`
	Points   *int    `json:"points,omitempty"`
	Streak   *int    `json:"streak,omitempty"`

	// Extra holds fields the platform sent that are not modelled above (e.g. "bio").
	Extra map[string]json.RawMessage `json:"-"`
}

// wireProfile has the same layout without the custom codec methods.
type wireProfile UserProfile

// Patch is a partial profile keyed by JSON field name. Merging is shallow:
// each key replaces the whole field.
type Patch map[string]any

// MarshalJSON encodes the modelled fields followed by Extra. Extra never overrides
// a modelled field, even one omitted because it is empty.
func (p UserProfile) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(wireProfile(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	fields := make(map[string]json.RawMessage, len(knownKeys)+len(p.Extra))
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if isKnownKey(k) {
			continue
		}
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the modelled fields and keeps everything else in Extra.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var w wireProfile
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(fields, k)
	}
	if len(fields) > 0 {
		w.Extra = fields
	} else {
		w.Extra = nil
	}

	*p = UserProfile(w)
	return nil
}

// Decode parses a serialized profile and rejects profiles without an id.
func Decode(data []byte) (UserProfile, error) {
	var p UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return UserProfile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if p.ID == "" {
		return UserProfile{}, fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	return p, nil
}

// Encode serializes p for persistence.
func Encode(p UserProfile) ([]byte, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	return json.Marshal(p)
}

// Merge returns a copy of p with every key of patch applied on top.
// p is never modified.
func (p UserProfile) Merge(patch Patch) (UserProfile, error) {
	if len(patch) == 0 {
		return p.Clone(), nil
	}

	base, err := json.Marshal(p)
	if err != nil {
		return UserProfile{}, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return UserProfile{}, err
	}

	for k, v := range patch {
		raw, err := json.Marshal(v)
		if err != nil {
			return UserProfile{}, fmt.Errorf("%w: field %q: %v", ErrInvalidProfile, k, err)
		}
		fields[k] = raw
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return UserProfile{}, err
	}
	return Decode(merged)
}

// PatchFromJSON turns a JSON object into a Patch.
func PatchFromJSON(data []byte) (Patch, error) {
	var patch Patch
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return patch, nil
}

// Clone returns a deep copy of p.
func (p UserProfile) Clone() UserProfile {
	out := p
	if p.Avatar != nil {
		v := *p.Avatar
		out.Avatar = &v
	}
	if p.Points != nil {
		v := *p.Points
		out.Points = &v
	}
	if p.Streak != nil {
		v := *p.Streak
		out.Streak = &v
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Field returns the raw JSON of an extension field.
func (p UserProfile) Field(name string) (json.RawMessage, bool) {
	v, ok := p.Extra[name]
	return v, ok
}

func isKnownKey(k string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}
