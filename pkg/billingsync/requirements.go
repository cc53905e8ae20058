package billingsync

// requirementRule pairs a predicate over the outstanding requirement sets
// with the status it implies. Rules are evaluated in priority order; the
// first match wins.
type requirementRule struct {
	matches func(RequirementSets) bool
	status  RequirementsStatus
}

// requirementRules is ordered by strict precedence:
// PendingVerification > PastDue > CurrentlyDue > EventuallyDue > None.
var requirementRules = []requirementRule{
	{func(r RequirementSets) bool { return len(r.PendingVerification) > 0 }, RequirementsPendingVerification},
	{func(r RequirementSets) bool { return len(r.PastDue) > 0 }, RequirementsPastDue},
	{func(r RequirementSets) bool { return len(r.CurrentlyDue) > 0 }, RequirementsCurrentlyDue},
	{func(r RequirementSets) bool { return len(r.EventuallyDue) > 0 }, RequirementsEventuallyDue},
}

// ComputeRequirementsStatus reduces the outstanding requirement sets to the
// single highest-precedence status.
func ComputeRequirementsStatus(sets RequirementSets) RequirementsStatus {
	for _, rule := range requirementRules {
		if rule.matches(sets) {
			return rule.status
		}
	}
	return RequirementsNone
}
