package descriptor

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// MaxPayloadSize bounds a single encoded descriptor.
const MaxPayloadSize = 512 << 10

var codec = sonic.ConfigStd

// Decode parses an encoded descriptor of the given kind. The payload may
// carry its own "kind"; when it does it must match. An absent priority
// becomes PriorityNormal. Decode does not validate: pass the result to
// Validator.Validate, or use Validator.Parse for both steps.
func Decode(kind Kind, raw []byte) (Descriptor, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if len(raw) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrDecode, MaxPayloadSize)
	}

	var (
		d    Descriptor
		base *Base
	)
	switch kind {
	case KindLiveActivity:
		var v LiveActivity
		if err := codec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		base = &v.Base
		d = &v
	case KindLockScreenWidget:
		var v LockScreenWidget
		if err := codec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		base = &v.Base
		d = &v
	case KindNotchExperience:
		var v NotchExperience
		if err := codec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		base = &v.Base
		d = &v
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrDecode, kind)
	}

	if base.DeclaredKind != "" && base.DeclaredKind != kind {
		return nil, malformed("kind", fmt.Sprintf("payload declares %q, call expects %q", base.DeclaredKind, kind))
	}
	base.DeclaredKind = kind
	if base.Level == "" {
		base.Level = PriorityNormal
	}
	return deref(d), nil
}

// deref turns the decoded pointer back into the value type so stored
// descriptors cannot be mutated through a shared pointer.
func deref(d Descriptor) Descriptor {
	switch v := d.(type) {
	case *LiveActivity:
		return *v
	case *LockScreenWidget:
		return *v
	case *NotchExperience:
		return *v
	}
	return d
}

// Encode is the inverse of Decode, used by the client SDK and tests.
func Encode(d Descriptor) ([]byte, error) {
	return codec.Marshal(d)
}
