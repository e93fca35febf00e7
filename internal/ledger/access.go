/*
SPDX-License-Identifier: Apache-2.0
*/

package ledger

// RoleAttribute is the certificate attribute carrying the invoker's role.
const RoleAttribute = "role"

// RoleAdmin may invoke every operation.
const RoleAdmin = "admin"

// RequireRole fails unless the invoker's role attribute is one of roles or
// admin. With enforce unset every invoker passes.
func (l *Ledger) RequireRole(enforce bool, roles ...string) error {
	if !enforce {
		return nil
	}
	val, found, err := l.Attribute(RoleAttribute)
	if err != nil {
		return Wrap(CodePermissionDenied, err, "failed to read role attribute")
	}
	if !found {
		return Errorf(CodePermissionDenied, "invoker has no %s attribute", RoleAttribute)
	}
	if val == RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if val == r {
			return nil
		}
	}
	return Errorf(CodePermissionDenied, "role %s may not perform this operation", val)
}
