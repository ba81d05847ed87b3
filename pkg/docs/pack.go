package docs

// IncludeDecl pins one protocol version a Pack bundles.
type IncludeDecl struct {
	Protocol  string   `yaml:"protocol" validate:"required"`
	Version   string   `yaml:"version,omitempty"`
	ChainScope []string `yaml:"chain_scope,omitempty"`
}

// Approvals holds the Pack's risk-level approval thresholds.
type Approvals struct {
	AutoExecuteMaxRiskLevel     int `yaml:"auto_execute_max_risk_level"`
	RequireApprovalMinRiskLevel int `yaml:"require_approval_min_risk_level"`
}

// PolicyDecl is the Pack's top-level policy block.
type PolicyDecl struct {
	Approvals Approvals `yaml:"approvals"`
}

// TokenAllowEntry is one allow-listed token.
type TokenAllowEntry struct {
	Symbol  string `yaml:"symbol" validate:"required"`
	Chain   string `yaml:"chain" validate:"required"`
	Address string `yaml:"address,omitempty"`
}

// TokenPolicy declares the allow-listed tokens and how ValueRef token
// references resolve against that allowlist.
type TokenPolicy struct {
	Allowlist  []TokenAllowEntry `yaml:"allowlist,omitempty"`
	Resolution string            `yaml:"resolution,omitempty"` // e.g. "symbol+chain" | "address"
}

// DetectProviderDecl registers one detect provider for a given kind.
type DetectProviderDecl struct {
	Kind       string   `yaml:"kind" validate:"required"`
	Provider   string   `yaml:"provider" validate:"required"`
	Chains     []string `yaml:"chains,omitempty"`
	Priority   int      `yaml:"priority,omitempty"`
	Candidates []string `yaml:"candidates,omitempty"`
}

// Providers groups provider allow-lists.
type Providers struct {
	Detect struct {
		Enabled []DetectProviderDecl `yaml:"enabled,omitempty"`
	} `yaml:"detect"`
}

// PluginExecutionDecl allow-lists one plugin execution type.
type PluginExecutionDecl struct {
	Type   string   `yaml:"type" validate:"required"`
	Chains []string `yaml:"chains,omitempty"`
}

// Plugins groups plugin allow-lists.
type Plugins struct {
	Execution struct {
		Enabled []PluginExecutionDecl `yaml:"enabled,omitempty"`
	} `yaml:"execution"`
}

// ActionOverride overrides a specific action's risk tags.
type ActionOverride struct {
	RiskTags []string `yaml:"risk_tags,omitempty"`
}

// Overrides groups the Pack's per-action overrides.
type Overrides struct {
	Actions map[string]ActionOverride `yaml:"actions,omitempty"`
}

// Pack is the `ais-pack/0.0.2` document.
type Pack struct {
	Meta                    Meta              `yaml:"meta" validate:"required"`
	Includes                []IncludeDecl     `yaml:"includes,omitempty"`
	Policy                  PolicyDecl        `yaml:"policy"`
	HardConstraintsDefaults *HardConstraints  `yaml:"hard_constraints_defaults,omitempty"`
	TokenPolicy             TokenPolicy       `yaml:"token_policy"`
	Providers               Providers         `yaml:"providers"`
	PluginsDecl             Plugins           `yaml:"plugins"`
	Overrides               Overrides         `yaml:"overrides"`
}

// PluginAllowed reports whether (executionType, chain) is enabled by the
// pack's plugins.execution.enabled list.
func (p *Pack) PluginAllowed(executionType, chain string) bool {
	for _, e := range p.PluginsDecl.Execution.Enabled {
		if e.Type != executionType {
			continue
		}
		if len(e.Chains) == 0 {
			return true
		}
		for _, c := range e.Chains {
			if chainMatches(c, chain) {
				return true
			}
		}
	}
	return false
}

func chainMatches(pattern, chain string) bool {
	return ChainMatches(pattern, chain)
}

// ChainMatches reports whether chain (a CAIP-2 id such as "eip155:1")
// matches pattern: an exact id, "<ns>:*", or "*".
func ChainMatches(pattern, chain string) bool {
	if pattern == "*" || pattern == chain {
		return true
	}
	if i := indexByte(pattern, ':'); i >= 0 && pattern[i+1:] == "*" {
		return len(chain) > i+1 && chain[:i+1] == pattern[:i+1]
	}
	return false
}

// ChainPatternRank orders patterns by specificity for exec-spec
// selection: exact id (0) beats "<ns>:*" (1) beats "*" (2).
func ChainPatternRank(pattern string) int {
	if pattern == "*" {
		return 2
	}
	if len(pattern) >= 2 && pattern[len(pattern)-2:] == ":*" {
		return 1
	}
	return 0
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
