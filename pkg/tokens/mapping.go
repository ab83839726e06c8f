package tokens

import (
	"fmt"
	"time"
)

// allowedBodyKeys is KnownParamKeys ∪ KnownMetadataKeys, the complete
// set of keys a POST body may contain. Anything outside this set is an
// unknown key and is rejected by FromMap.
var allowedBodyKeys = func() map[string]bool {
	m := map[string]bool{}
	for _, k := range KnownParamKeys {
		m[k] = true
	}
	for _, k := range KnownMetadataKeys {
		m[k] = true
	}
	return m
}()

// FromMap parses a flattened JSON request body (parameters and
// metadata side by side, as described here) into a Record. It
// rejects unknown keys outright; callers that need admin-mode-only
// fields filtered out should do so on the raw map before calling
// FromMap, using AdminOnlyMetadataKeys.
func FromMap(body map[string]any) (Record, error) {
	var r Record
	for k := range body {
		if !allowedBodyKeys[k] {
			return r, fmt.Errorf("unknown key %q", k)
		}
	}

	if v, ok := body["cmd"].(string); ok {
		r.Params.Cmd = v
	}
	if v, ok := asFloat(body["cpus"]); ok {
		r.Params.Cpus = v
	}
	if v, ok := asInt64(body["mem"]); ok {
		r.Params.Mem = v
	}
	if v, ok := body["ports"].([]any); ok {
		ports := make([]int, 0, len(v))
		for _, e := range v {
			n, ok := asInt64(e)
			if !ok {
				return r, fmt.Errorf("ports must be a list of integers")
			}
			ports = append(ports, int(n))
		}
		r.Params.Ports = ports
	}
	if v, ok := body["ports"].([]int); ok {
		r.Params.Ports = append([]int(nil), v...)
	}
	if v, ok := body["health-check-url"].(string); ok {
		r.Params.HealthCheckURL = v
	}
	if v, ok := body["health-check-proto"].(string); ok {
		r.Params.HealthCheckProto = v
	}
	if v, ok := body["authentication"].(string); ok {
		r.Params.Authentication = v
	}
	if v, ok := body["permitted-user"].(string); ok {
		r.Params.PermittedUser = v
	}
	if v, ok := body["run-as-user"].(string); ok {
		r.Params.RunAsUser = v
	}
	if v, ok := asInt64(body["interstitial-secs"]); ok {
		r.Params.InterstitialSecs = int(v)
	}
	if v, ok := body["extra"].(map[string]any); ok {
		if len(v) > MaxExtraKeys {
			return r, fmt.Errorf("extra bag carries %d keys, more than the %d allowed", len(v), MaxExtraKeys)
		}
		extra := make(map[string]string, len(v))
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return r, fmt.Errorf("extra.%s must be a string", k)
			}
			extra[k] = s
		}
		r.Params.Extra = extra
	}
	if v, ok := body["extra"].(map[string]string); ok {
		if len(v) > MaxExtraKeys {
			return r, fmt.Errorf("extra bag carries %d keys, more than the %d allowed", len(v), MaxExtraKeys)
		}
		extra := make(map[string]string, len(v))
		for k, val := range v {
			extra[k] = val
		}
		r.Params.Extra = extra
	}

	if v, ok := body["owner"].(string); ok {
		r.Metadata.Owner = v
	}
	if v, ok := body["root"].(string); ok {
		r.Metadata.Root = v
	}
	if v, ok := body["cluster"].(string); ok {
		r.Metadata.Cluster = v
	}
	if v, ok := body["last-update-user"].(string); ok {
		r.Metadata.LastUpdateUser = v
	}
	if raw, present := body["last-update-time"]; present {
		t, err := parseLastUpdateTime(raw)
		if err != nil {
			return r, err
		}
		r.Metadata.LastUpdateTime = t
	}
	if raw, ok := body["previous"]; ok {
		if _, ok := raw.(map[string]any); !ok {
			if _, ok := raw.([]any); !ok {
				return r, fmt.Errorf("previous must be a mapping or a list")
			}
		}
		// previous is accepted syntactically but the pipeline always overwrites it
		// with the existing record's own history rather than trusting a
		// caller-supplied chain.
	}

	return r, nil
}

// parseLastUpdateTime accepts either an ISO-8601 string or a ms-epoch
// number.
func parseLastUpdateTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("last-update-time %q is not valid ISO-8601: %w", v, err)
		}
		return t, nil
	default:
		if ms, ok := asInt64(raw); ok {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("last-update-time must be a string or a ms-epoch number")
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// ToMap renders a record as a flat JSON-ready map, mirroring the shape
// FromMap consumes. includeMetadata controls whether system metadata
// (root, last-update-time as ISO-8601, last-update-user, deleted and
// the etag) is present, matching the `include=metadata` toggle on GET
// and the metadata/no-metadata listing forms. The deleted and etag
// keys are output-only: FromMap rejects them as unknown keys.
func ToMap(r Record, includeMetadata bool) map[string]any {
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
		m["ports"] = r.Params.Ports
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
		m["extra"] = r.Params.Extra
	}

	m["owner"] = r.Metadata.Owner
	if r.Metadata.Cluster != "" {
		m["cluster"] = r.Metadata.Cluster
	}

	if includeMetadata {
		m["root"] = r.Metadata.Root
		if !r.Metadata.LastUpdateTime.IsZero() {
			m["last-update-time"] = r.Metadata.LastUpdateTime.UTC().Format(time.RFC3339)
		}
		m["last-update-user"] = r.Metadata.LastUpdateUser
		m["deleted"] = r.Metadata.Deleted
		m["etag"] = Hash(r)
	}

	return m
}
