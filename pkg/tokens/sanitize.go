package tokens

import "sort"

// Sanitize projects a record to the canonical map used for hashing and
// for the user-editable-field comparison in the idempotence check. It
// restricts the payload to the recognized key set, normalizes
// nil/empty collections away, and never includes Previous.
func Sanitize(r Record) map[string]any {
	m := map[string]any{}

	if r.Params.Cmd != "" {
		m["cmd"] = r.Params.Cmd
	}
	if r.Params.Cpus != 0 {
		m["cpus"] = r.Params.Cpus
	}
	if r.Params.Mem != 0 {
		m["mem"] = r.Params.Mem
	}
	if len(r.Params.Ports) > 0 {
		ports := make([]int, len(r.Params.Ports))
		copy(ports, r.Params.Ports)
		m["ports"] = ports
	}
	if r.Params.HealthCheckURL != "" {
		m["health-check-url"] = r.Params.HealthCheckURL
	}
	if r.Params.HealthCheckProto != "" {
		m["health-check-proto"] = r.Params.HealthCheckProto
	}
	if r.Params.Authentication != "" {
		m["authentication"] = r.Params.Authentication
	}
	if r.Params.PermittedUser != "" {
		m["permitted-user"] = r.Params.PermittedUser
	}
	if r.Params.RunAsUser != "" {
		m["run-as-user"] = r.Params.RunAsUser
	}
	if r.Params.InterstitialSecs != 0 {
		m["interstitial-secs"] = r.Params.InterstitialSecs
	}
	if len(r.Params.Extra) > 0 {
		keys := make([]string, 0, len(r.Params.Extra))
		for k := range r.Params.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		extra := make(map[string]string, len(keys))
		for _, k := range keys {
			extra[k] = r.Params.Extra[k]
		}
		m["extra"] = extra
	}

	if r.Metadata.Owner != "" {
		m["owner"] = r.Metadata.Owner
	}
	if r.Metadata.Root != "" {
		m["root"] = r.Metadata.Root
	}
	if r.Metadata.Cluster != "" {
		m["cluster"] = r.Metadata.Cluster
	}
	if !r.Metadata.LastUpdateTime.IsZero() {
		m["last-update-time"] = r.Metadata.LastUpdateTime.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	if r.Metadata.LastUpdateUser != "" {
		m["last-update-user"] = r.Metadata.LastUpdateUser
	}
	if r.Metadata.Deleted {
		m["deleted"] = true
	}

	return m
}

// EditableProjection restricts a record to the fields a user request
// can actually set, for the idempotence comparison against an
// existing record: last-update-time/last-update-user are excluded
// because they change on every write even when nothing the user
// supplied did.
func EditableProjection(r Record) map[string]any {
	m := Sanitize(r)
	delete(m, "last-update-time")
	delete(m, "last-update-user")
	return m
}

// TruncateHistory drops the oldest entries of chain so at most h remain.
// chain is assumed newest-first, matching Record.WithHistory.
func TruncateHistory(chain []Snapshot, h int) []Snapshot {
	if h < 0 || len(chain) <= h {
		return chain
	}
	return chain[:h]
}
