package container

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
)

// CleanupResult counts outcomes of one cleanup_expired pass. Per-item
// removal errors are counted, never propagated: a single bad removal must
// not fail the whole reclamation sweep.
type CleanupResult struct {
	ContainersRemoved int
	VolumesRemoved    int
	Errors            []string
}

// CleanupExpired removes containers and volumes labeled with the component
// whose created label is older than maxAgeDays. When projectID is non-empty
// the sweep is filtered to that project, matching the between-attempt
// cleanup the command executor invokes with max_age_days=0.
func (m *Manager) CleanupExpired(ctx context.Context, maxAgeDays int, projectID string) (*CleanupResult, error) {
	api, err := m.dockerAPI()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	result := &CleanupResult{}

	labelFilter := filters.NewArgs(filters.Arg("label", componentLabel+"="+componentLabelValue))
	if projectID != "" {
		labelFilter.Add("label", projectIDLabel+"="+projectID)
	}

	containers, err := api.ContainerList(ctx, container.ListOptions{All: true, Filters: labelFilter})
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		created, ok := c.Labels[createdLabel]
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, created)
		if err != nil || ts.After(cutoff) {
			continue
		}
		if err := api.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		m.unregisterByContainerID(c.Labels[projectIDLabel])
		result.ContainersRemoved++
	}

	volumes, err := api.VolumeList(ctx, volume.ListOptions{Filters: labelFilter})
	if err != nil {
		return nil, err
	}
	for _, v := range volumes.Volumes {
		created, ok := v.Labels[createdLabel]
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, created)
		if err != nil || ts.After(cutoff) {
			continue
		}
		if err := api.VolumeRemove(ctx, v.Name, true); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.VolumesRemoved++
	}

	return result, nil
}

func (m *Manager) unregisterByContainerID(projectID string) {
	if projectID == "" {
		return
	}
	m.unregister(projectID)
}
