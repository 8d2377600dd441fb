package config

import "fmt"

// ContainerConfig controls per-project container provisioning, grounded on
// the constants in the original per-project container manager.
type ContainerConfig struct {
	BaseImage          string `yaml:"base_image"`
	MaxGlobalContainers int   `yaml:"max_global_containers"`
	MaxPerProject      int    `yaml:"max_per_project"`
	CPUCount           int64  `yaml:"cpu_count"`
	MemoryBytes        int64  `yaml:"memory_bytes"`
	NetworkName        string `yaml:"network_name"`
	ContainerPrefix    string `yaml:"container_prefix"`
	VolumePrefix       string `yaml:"volume_prefix"`
	// GitTokenEnvVars are the process environment variables forwarded into
	// project containers when present.
	GitTokenEnvVars []string `yaml:"git_token_env_vars"`
}

func DefaultContainerConfig() *ContainerConfig {
	return &ContainerConfig{
		BaseImage:           "node:18-alpine",
		MaxGlobalContainers: 5,
		MaxPerProject:       1,
		CPUCount:            1,
		MemoryBytes:         1 << 30, // 1 GiB
		NetworkName:         "clarity-project-network",
		ContainerPrefix:     "clarity-project",
		VolumePrefix:        "clarity-project-vol",
		GitTokenEnvVars:     []string{"GITHUB_TOKEN", "GITLAB_TOKEN", "BITBUCKET_TOKEN", "GIT_TOKEN"},
	}
}

func (c *ContainerConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("container configuration is nil")
	}
	if c.BaseImage == "" {
		return fmt.Errorf("base_image is required")
	}
	if c.MaxGlobalContainers < 1 {
		return fmt.Errorf("max_global_containers must be at least 1")
	}
	if c.MaxPerProject < 1 {
		return fmt.Errorf("max_per_project must be at least 1")
	}
	if c.MaxPerProject > c.MaxGlobalContainers {
		return fmt.Errorf("max_per_project cannot exceed max_global_containers")
	}
	if c.CPUCount < 1 {
		return fmt.Errorf("cpu_count must be at least 1")
	}
	if c.MemoryBytes < 1 {
		return fmt.Errorf("memory_bytes must be positive")
	}
	return nil
}
