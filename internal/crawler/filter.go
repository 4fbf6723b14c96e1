package crawler

import "strings"

// HostAllowed gates whether a discovered link may enter the frontier.
// With sameDomainOnly the candidate host must equal the seed host exactly;
// subdomains do not widen the scope. Links rejected here are still
// recorded as edges, they are just never fetched.
func HostAllowed(seedHost, candidateHost string, sameDomainOnly bool) bool {
	if !sameDomainOnly {
		return true
	}
	return strings.EqualFold(seedHost, candidateHost)
}
