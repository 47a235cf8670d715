package resource

// AccessOp names an operation `perform` may be asked to carry out on a
// handle.
type AccessOp uint8

const (
	OpReadFields AccessOp = iota
	OpWriteFields
	OpCallMethod
	OpDrop
	OpShare
	OpBorrowMutable
	OpBorrowImmutable
	OpReturnFromBorrow
)

func (op AccessOp) requiredRight() (Right, bool) {
	switch op {
	case OpReadFields:
		return RightRead, true
	case OpWriteFields:
		return RightWrite, true
	case OpDrop:
		return RightDrop, true
	case OpShare:
		return RightShare, true
	case OpBorrowMutable, OpBorrowImmutable, OpReturnFromBorrow:
		return RightBorrow, true
	case OpCallMethod:
		return 0, false // method calls are gated by the policy layer only
	default:
		return 0, false
	}
}

// Policy is a registered access policy for (component, type): an explicit
// allow-list of operations, optionally expiring. ExpiresAtMillis == 0
// means the policy never expires.
type Policy struct {
	Component       ComponentInstanceID
	TypeID          TypeID
	Allowed         map[AccessOp]bool
	ExpiresAtMillis int64
}

// AccessChecker implements the four-step access algorithm:
//  1. caller must own the handle or hold a previously shared handle
//     referencing the same resource
//  2. the requested op must be in the handle's rights set
//  3. any registered (component, type) policy must list the op
//  4. expired policies (ExpiresAtMillis in the past) are ignored, i.e.
//     treated as absent rather than as a denial
type AccessChecker struct {
	policies map[policyKey]*Policy
	nowMs    func() int64
}

type policyKey struct {
	component ComponentInstanceID
	typeID    TypeID
}

// NewAccessChecker creates a checker using nowMs to resolve policy expiry
// (ordinarily backed by a platform.Platform's CurrentTimeMillis).
func NewAccessChecker(nowMs func() int64) *AccessChecker {
	return &AccessChecker{policies: make(map[policyKey]*Policy), nowMs: nowMs}
}

// RegisterPolicy installs or replaces the policy for (component, typeID).
func (c *AccessChecker) RegisterPolicy(p *Policy) {
	c.policies[policyKey{p.Component, p.TypeID}] = p
}

// Check runs the four-step algorithm. caller is the component attempting
// the operation; rep is the handle representation being accessed.
func (c *AccessChecker) Check(caller ComponentInstanceID, rep *Representation, op AccessOp) error {
	// Step 1: ownership. A caller may act on a handle it owns; sharing
	// mints a distinct Representation for the recipient, so "owns the
	// handle" is simply "rep.Owner == caller" for that Representation.
	if rep.Owner != caller {
		return accessDenied("caller does not own this handle")
	}

	// Step 2: rights.
	if want, ok := op.requiredRight(); ok && !rep.Rights.Has(want) {
		return accessDenied("operation not permitted by handle rights")
	}

	// Step 3 & 4: registered policy, ignoring expired ones.
	if p, ok := c.policies[policyKey{caller, rep.TypeID}]; ok {
		if p.ExpiresAtMillis == 0 || p.ExpiresAtMillis > c.nowMs() {
			if !p.Allowed[op] {
				return accessDenied("operation not listed in registered access policy")
			}
		}
		// expired policy: ignored, operation proceeds.
	}

	return nil
}

func accessDenied(detail string) error {
	return capabilityDeniedErr(detail)
}
