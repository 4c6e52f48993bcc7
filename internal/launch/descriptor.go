package launch

import (
	"encoding/json"
	"regexp"
	"strings"

	"taskplane/internal/cluster"
	"taskplane/internal/registry"
	"taskplane/internal/task"
)

var labelValuePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeLabelValue replaces every character outside [A-Za-z0-9._-] with
// '.', making free-form registry tag values safe as scheduler label values.
func SanitizeLabelValue(v string) string {
	return labelValuePattern.ReplaceAllString(v, ".")
}

// buildLabels attaches the identity, ownership and registry tags to a job.
// System tags use the "key:value" form split on the first ':'; only the
// value side is sanitized, and tags without a ':' are ignored.
func buildLabels(id task.Identity, user string, tags registry.RunTags) map[string]string {
	labels := map[string]string{
		"app":                          "taskplane",
		"app.kubernetes.io/name":       "taskplane-task",
		"app.kubernetes.io/part-of":    "taskplane",
		"app.kubernetes.io/created-by": SanitizeLabelValue(user),
		"taskplane/flow-name":          id.FlowName,
		"taskplane/run-id":             id.RunID,
		"taskplane/step-name":          id.StepName,
		"taskplane/task-id":            id.TaskID,
		"taskplane/attempt":            id.AttemptString(),
	}
	for _, tag := range tags.SysTags {
		i := strings.Index(tag, ":")
		if i < 0 {
			continue
		}
		labels["taskplane/"+tag[:i]] = SanitizeLabelValue(tag[i+1:])
	}
	return labels
}

// coreEnv is the environment every launched task receives. Caller-supplied
// variables are overlaid afterwards and may shadow any of these.
func coreEnv(s Settings, code CodePackage, user string) []cluster.EnvVar {
	headers := "{}"
	if len(s.ServiceHeaders) > 0 {
		// Map marshaling sorts keys, so the value is deterministic.
		b, _ := json.Marshal(s.ServiceHeaders)
		headers = string(b)
	}
	metadata := "local"
	if s.ServiceURL != "" {
		metadata = "service"
	}
	env := []cluster.EnvVar{
		{Name: "TASKPLANE_SERVICE_URL", Value: s.ServiceURL},
		{Name: "TASKPLANE_SERVICE_HEADERS", Value: headers},
		{Name: "TASKPLANE_DEFAULT_METADATA", Value: metadata},
		{Name: "TASKPLANE_DEFAULT_DATASTORE", Value: s.DatastoreType},
		{Name: "TASKPLANE_DATASTORE_SYSROOT", Value: s.DatastoreSysroot},
		{Name: "TASKPLANE_CODE_URL", Value: code.URL},
		{Name: "TASKPLANE_CODE_SHA", Value: code.SHA},
		{Name: "TASKPLANE_CODE_DS", Value: code.DatastoreType},
		{Name: "TASKPLANE_USER", Value: user},
		{Name: "TASKPLANE_CLUSTER_WORKLOAD", Value: "1"},
	}
	if s.DatastoreType == "postgres" {
		// The capture commands inside the container refuse to start
		// without it.
		env = append(env, cluster.EnvVar{Name: "TASKPLANE_DATABASE_URL", Value: s.DatabaseURL})
	}
	return env
}

// mergeEnv overlays extra onto core. Names already present are overridden in
// place so order stays deterministic; new names append in caller order. Core
// never shadows the caller.
func mergeEnv(core, extra []cluster.EnvVar) []cluster.EnvVar {
	out := append([]cluster.EnvVar(nil), core...)
	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.Name] = i
	}
	for _, e := range extra {
		if i, ok := index[e.Name]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}

// buildDescriptor assembles the full job descriptor for one attempt. The
// scheduler retry budget is pinned to zero: attempts are driven from the
// monitoring side.
func (l *Launcher) buildDescriptor(p Params, user string, tags registry.RunTags, command []string) cluster.Descriptor {
	return cluster.Descriptor{
		Name:           p.Identity.JobName(),
		Namespace:      p.Namespace,
		ServiceAccount: p.ServiceAccount,
		Image:          p.Image,
		Command:        command,
		CPU:            p.CPU,
		Memory:         p.Memory,
		GPU:            p.GPU,
		TimeLimit:      p.TimeLimit,
		Env:            mergeEnv(coreEnv(l.Settings, p.Code, user), p.Env),
		Labels:         buildLabels(p.Identity, user, tags),
		Retries:        0,
	}
}
