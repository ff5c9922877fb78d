// Package config loads the policy files under a run root's config/
// directory through viper, with env-var interpolation applied to every
// string field — ${VAR} and ${VAR:-default} are both recognized. A missing
// policy file is not an error: the caller receives the in-code defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/viper"
)

// VerifyCommand is one entry of an acceptance policy's verifyCommands list.
type VerifyCommand struct {
	Cmd            string `mapstructure:"cmd" json:"cmd"`
	ExpectExitCode int    `mapstructure:"expectExitCode" json:"expectExitCode"`
	TimeoutSec     int    `mapstructure:"timeoutSec" json:"timeoutSec"`
}

// AgentBudgetLimits is one agent's (or the global) budget axis limits and
// degrade policy, loaded from budget-policy.json.
type AgentBudgetLimits struct {
	MaxTaskTokens      int      `mapstructure:"maxTaskTokens" json:"maxTaskTokens"`
	MaxTaskWallTimeSec int      `mapstructure:"maxTaskWallTimeSec" json:"maxTaskWallTimeSec"`
	MaxTaskRetries     int      `mapstructure:"maxTaskRetries" json:"maxTaskRetries"`
	DegradePolicy      []string `mapstructure:"degradePolicy" json:"degradePolicy"`
	OnExceeded         string   `mapstructure:"onExceeded" json:"onExceeded"`
}

// BudgetPolicy is budget-policy.json.
type BudgetPolicy struct {
	Global AgentBudgetLimits            `mapstructure:"global" json:"global"`
	Agents map[string]AgentBudgetLimits `mapstructure:"agents" json:"agents"`
}

// DefaultBudgetPolicy ships generous defaults (every limit >=1) so an
// un-configured run still dispatches.
func DefaultBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{
		Global: AgentBudgetLimits{
			MaxTaskTokens:      20000,
			MaxTaskWallTimeSec: 900,
			MaxTaskRetries:     3,
			DegradePolicy:      []string{"reduced_context", "manual_handoff"},
			OnExceeded:         "manual_handoff",
		},
	}
}

// RecoveryLimits is one reason code's (or the default) attempt/cooldown
// policy, loaded from recovery-policy.json.
type RecoveryLimits struct {
	MaxAttempts int `mapstructure:"maxAttempts" json:"maxAttempts"`
	CooldownSec int `mapstructure:"cooldownSec" json:"cooldownSec"`
}

// RecoveryPolicy is recovery-policy.json.
type RecoveryPolicy struct {
	RecoveryChain  []string                  `mapstructure:"recoveryChain" json:"recoveryChain"`
	Default        RecoveryLimits            `mapstructure:"default" json:"default"`
	ReasonPolicies map[string]RecoveryLimits `mapstructure:"reasonPolicies" json:"reasonPolicies"`
}

// DefaultRecoveryPolicy ends the escalation chain with a human handoff.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		RecoveryChain: []string{"coder", "reviewer", "human"},
		Default:       RecoveryLimits{MaxAttempts: 2, CooldownSec: 300},
	}
}

// AcceptanceRolePolicy overrides the global acceptance policy for one role.
type AcceptanceRolePolicy struct {
	RequireEvidence *bool           `mapstructure:"requireEvidence" json:"requireEvidence,omitempty"`
	VerifyCommands  []VerifyCommand `mapstructure:"verifyCommands" json:"verifyCommands,omitempty"`
}

// AcceptancePolicy is acceptance-policy.json.
type AcceptancePolicy struct {
	Global struct {
		RequireEvidence bool            `mapstructure:"requireEvidence" json:"requireEvidence"`
		VerifyCommands  []VerifyCommand `mapstructure:"verifyCommands" json:"verifyCommands"`
	} `mapstructure:"global" json:"global"`
	Roles map[string]AcceptanceRolePolicy `mapstructure:"roles" json:"roles"`
}

// DefaultAcceptancePolicy requires evidence by default with no verify
// commands configured.
func DefaultAcceptancePolicy() AcceptancePolicy {
	var p AcceptancePolicy
	p.Global.RequireEvidence = true
	return p
}

// RoleStrategiesPolicy is role-strategies.json: which ROLE_STRATEGY prompt
// block applies per task kind / agent, and a rollout percent gating it.
type RoleStrategiesPolicy struct {
	TaskKinds     map[string]string `mapstructure:"taskKinds" json:"taskKinds"`
	Agents        map[string]string `mapstructure:"agents" json:"agents"`
	Default       string            `mapstructure:"default" json:"default"`
	RolloutPercent int              `mapstructure:"rolloutPercent" json:"rolloutPercent"`
}

// DefaultRoleStrategiesPolicy fully rolls out (100%) with an empty default
// strategy block.
func DefaultRoleStrategiesPolicy() RoleStrategiesPolicy {
	return RoleStrategiesPolicy{RolloutPercent: 100}
}

// KnowledgeFeedbackPolicy is knowledge-feedback.json.
type KnowledgeFeedbackPolicy struct {
	Enabled          bool     `mapstructure:"enabled" json:"enabled"`
	ReadOnly         bool     `mapstructure:"readOnly" json:"readOnly"`
	TimeoutMs        int      `mapstructure:"timeoutMs" json:"timeoutMs"`
	MaxItems         int      `mapstructure:"maxItems" json:"maxItems"`
	SourceCandidates []string `mapstructure:"sourceCandidates" json:"sourceCandidates"`
}

// DefaultKnowledgeFeedbackPolicy disables the knowledge adapter so an
// un-configured run never depends on it.
func DefaultKnowledgeFeedbackPolicy() KnowledgeFeedbackPolicy {
	return KnowledgeFeedbackPolicy{Enabled: false, ReadOnly: true, TimeoutMs: 500, MaxItems: 5}
}

// RuntimePolicy is runtime-policy.json — orchestrator-wide knobs plus
// per-agent executor selection.
type RuntimePolicy struct {
	Agents       map[string]AgentRuntimeConfig `mapstructure:"agents" json:"agents"`
	Orchestrator OrchestratorConfig            `mapstructure:"orchestrator" json:"orchestrator"`
}

// AgentRuntimeConfig selects the executor kind and binary for one agent id.
type AgentRuntimeConfig struct {
	Executor   string `mapstructure:"executor" json:"executor"` // "subprocess", "bridge", "fake"
	BinaryPath string `mapstructure:"binaryPath" json:"binaryPath"`
	TimeoutSec int    `mapstructure:"timeoutSec" json:"timeoutSec"`
}

// OrchestratorConfig bounds dispatcher-wide concurrency and retry/budget
// policy file names.
type OrchestratorConfig struct {
	MaxConcurrentSpawns int    `mapstructure:"maxConcurrentSpawns" json:"maxConcurrentSpawns"`
	RetryPolicy         string `mapstructure:"retryPolicy" json:"retryPolicy"`
	BudgetPolicy        string `mapstructure:"budgetPolicy" json:"budgetPolicy"`
}

// DefaultRuntimePolicy allows one spawn at a time and configures no agent
// executors.
func DefaultRuntimePolicy() RuntimePolicy {
	return RuntimePolicy{Orchestrator: OrchestratorConfig{MaxConcurrentSpawns: 1}}
}

// Policies bundles every config/*.json file loaded for one run root.
type Policies struct {
	Budget     BudgetPolicy
	Recovery   RecoveryPolicy
	Acceptance AcceptancePolicy
	Strategies RoleStrategiesPolicy
	Knowledge  KnowledgeFeedbackPolicy
	Runtime    RuntimePolicy
}

// Load reads every policy file under configDir, falling back to its
// corresponding default when the file does not exist.
func Load(configDir string) (Policies, error) {
	p := Policies{
		Budget:     DefaultBudgetPolicy(),
		Recovery:   DefaultRecoveryPolicy(),
		Acceptance: DefaultAcceptancePolicy(),
		Strategies: DefaultRoleStrategiesPolicy(),
		Knowledge:  DefaultKnowledgeFeedbackPolicy(),
		Runtime:    DefaultRuntimePolicy(),
	}

	if err := loadInto(configDir, "budget-policy.json", &p.Budget); err != nil {
		return p, err
	}
	if err := loadInto(configDir, "recovery-policy.json", &p.Recovery); err != nil {
		return p, err
	}
	if err := loadInto(configDir, "acceptance-policy.json", &p.Acceptance); err != nil {
		return p, err
	}
	if err := loadInto(configDir, "role-strategies.json", &p.Strategies); err != nil {
		return p, err
	}
	if err := loadInto(configDir, "knowledge-feedback.json", &p.Knowledge); err != nil {
		return p, err
	}
	if err := loadInto(configDir, "runtime-policy.json", &p.Runtime); err != nil {
		return p, err
	}
	return p, nil
}

func loadInto(dir, filename string, dest any) error {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", filename, err)
	}
	expandViperStringsInPlace(v)
	if err := v.Unmarshal(dest); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", filename, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} and ${NAME:-default} occurrences in s against
// the process environment.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[3]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}

// expandViperStringsInPlace walks every key viper loaded and re-sets string
// (and string-slice) values through ExpandEnv, since viper's Unmarshal
// otherwise copies the raw file content verbatim.
func expandViperStringsInPlace(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		switch val := v.Get(key).(type) {
		case string:
			v.Set(key, ExpandEnv(val))
		case []any:
			out := make([]any, len(val))
			for i, item := range val {
				if s, ok := item.(string); ok {
					out[i] = ExpandEnv(s)
				} else {
					out[i] = item
				}
			}
			v.Set(key, out)
		}
	}
}
