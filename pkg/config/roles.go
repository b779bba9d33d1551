package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Workflow roles. Role selection changes the system prompt and, optionally,
// the provider configuration; agent behavior is otherwise identical.
const (
	RoleMaster     = "master"
	RoleResearcher = "researcher"
	RoleModeler    = "modeler"
	RoleWriter     = "writer"
)

// RoleProfile carries the role-specific system prompt and an optional
// provider override.
type RoleProfile struct {
	SystemPrompt string           `yaml:"system_prompt"`
	Provider     ProviderOverride `yaml:"provider,omitempty"`
}

const rolesFileName = "roles.yaml"

// defaultRoleProfiles are the built-in prompts, used when the workspace has
// no roles.yaml or omits a role.
func defaultRoleProfiles() map[string]RoleProfile {
	return map[string]RoleProfile{
		RoleMaster: {
			SystemPrompt: "You are the lead coordinator of a mathematical modeling team. " +
				"You restate problems precisely, identify assumptions and variables, and " +
				"produce structured, actionable plans. Be rigorous and concise.",
		},
		RoleResearcher: {
			SystemPrompt: "You are a research specialist for mathematical modeling competitions. " +
				"Given a problem statement, suggest applicable techniques, canonical models, and " +
				"relevant literature. Cite the method family for each suggestion.",
		},
		RoleModeler: {
			SystemPrompt: "You are a computational modeler. Given an approved modeling plan, " +
				"write complete, runnable Python code implementing the model, including parameter " +
				"definitions, the solution procedure, and result output. Return only code blocks " +
				"with brief commentary.",
		},
		RoleWriter: {
			SystemPrompt: "You are a technical writer producing competition-grade papers in LaTeX. " +
				"Given modeling artifacts, write a complete paper with abstract, problem restatement, " +
				"assumptions, model development, experimental validation, sensitivity analysis, and " +
				"conclusions. Include figure environments for every provided visualization.",
		},
	}
}

// rolesFileWire is the on-disk shape of roles.yaml.
type rolesFileWire struct {
	Roles map[string]RoleProfile `yaml:"roles"`
}

// LoadRoleProfiles returns the effective role profiles for a workspace:
// built-in defaults overlaid with <workspace>/.papermill/roles.yaml where
// present. Provider overrides declared in roles.yaml are validated here.
func LoadRoleProfiles(workspaceDir string) (map[string]RoleProfile, error) {
	profiles := defaultRoleProfiles()

	path := filepath.Join(workspaceDir, ConfigDirName, rolesFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file %s: %w", path, err)
	}

	var wire rolesFileWire
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse roles file %s: %w", path, err)
	}

	for role, profile := range wire.Roles {
		if profile.Provider.Kind != "" {
			if _, err := ParseProviderKind(profile.Provider.Kind); err != nil {
				return nil, fmt.Errorf("role %q: %w", role, err)
			}
		}
		merged := profiles[role]
		if profile.SystemPrompt != "" {
			merged.SystemPrompt = profile.SystemPrompt
		}
		if !profile.Provider.IsZero() {
			merged.Provider = profile.Provider
		}
		profiles[role] = merged
	}

	return profiles, nil
}

// ApplyRoleProfiles folds provider overrides from role profiles into the
// config's role table. Overrides already present in config.json win over
// roles.yaml field by field.
func (c Config) ApplyRoleProfiles(profiles map[string]RoleProfile) Config {
	merged := make(map[string]ProviderOverride, len(c.Roles)+len(profiles))
	for role, override := range c.Roles {
		merged[role] = override
	}

	for role, profile := range profiles {
		if profile.Provider.IsZero() {
			continue
		}
		existing := merged[role]
		combined := profile.Provider
		if existing.Kind != "" {
			combined.Kind = existing.Kind
		}
		if existing.APIKey != "" {
			combined.APIKey = existing.APIKey
		}
		if existing.BaseURL != "" {
			combined.BaseURL = existing.BaseURL
		}
		if existing.Model != "" {
			combined.Model = existing.Model
		}
		if existing.MaxTokens != 0 {
			combined.MaxTokens = existing.MaxTokens
		}
		if existing.Temperature != nil {
			combined.Temperature = existing.Temperature
		}
		merged[role] = combined
	}

	c.Roles = merged
	return c
}
