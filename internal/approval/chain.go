// Package approval holds the timesheet approval rules: who has to sign, in
// which order, in what capacity, and which status changes are legal.
package approval

import "github.com/pesio-ai/be-hr-timesheets/internal/repository"

// BuildChain returns the ordered, de-duplicated approver ids for a profile:
// supervisor (or reports-to when no supervisor is set), then manager, then
// final approver. Fields pointing back at the profile are ignored. An empty
// chain means nobody needs to approve.
func BuildChain(p *repository.Profile) []string {
	if p == nil {
		return nil
	}

	first := p.SupervisorID
	if isEmpty(first) {
		first = p.ReportsToID
	}

	chain := make([]string, 0, 3)
	for _, ref := range []*string{first, p.ManagerID, p.FinalApproverID} {
		if isEmpty(ref) || *ref == p.ID || contains(chain, *ref) {
			continue
		}
		chain = append(chain, *ref)
	}
	return chain
}

// NextApprover returns the first chain member that has not signed. ok is
// false once every member has signed.
func NextApprover(chain []string, signed map[string]bool) (id string, ok bool) {
	for _, member := range chain {
		if !signed[member] {
			return member, true
		}
	}
	return "", false
}

// Complete reports whether every chain member has signed.
func Complete(chain []string, signed map[string]bool) bool {
	_, pending := NextApprover(chain, signed)
	return !pending
}

// InChain reports whether id appears in the chain.
func InChain(chain []string, id string) bool {
	return contains(chain, id)
}

// SignerRole decides the capacity a signature is recorded under. inOrder is
// false when an admin signs without being the next approver; such a
// signature finalises the timesheet.
func SignerRole(owner *repository.Profile, chain []string, signerID string, inOrder bool) repository.SignerRole {
	if !inOrder {
		return repository.SignerFinalApprover
	}
	if len(chain) > 0 && chain[len(chain)-1] == signerID {
		return repository.SignerFinalApprover
	}
	if owner != nil && !isEmpty(owner.ManagerID) && *owner.ManagerID == signerID {
		return repository.SignerManager
	}
	return repository.SignerSupervisor
}

func isEmpty(ref *string) bool {
	return ref == nil || *ref == ""
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
