package artifact

import (
	"encoding/json"

	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/topology"
)

// =============================================================================
// Bot Policy Types
// =============================================================================

// BotPolicy is the Anubis policy document. Field order is the document
// order.
type BotPolicy struct {
	Allow     []PolicyRule   `json:"ALLOW"`
	Challenge []PolicyRule   `json:"CHALLENGE"`
	Block     []PolicyRule   `json:"BLOCK"`
	Config    PolicyConfig   `json:"config"`
	Metadata  PolicyMetadata `json:"metadata"`
}

// PolicyRule matches requests by path or user agent.
type PolicyRule struct {
	Path        string     `json:"path,omitempty"`
	UserAgent   string     `json:"user-agent,omitempty"`
	RateLimit   *RateLimit `json:"rate_limit,omitempty"`
	Description string     `json:"description"`
}

// RateLimit throttles matching requests.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	Burst             int `json:"burst"`
}

// PolicyConfig carries the challenge settings.
type PolicyConfig struct {
	Difficulty           int  `json:"difficulty"`
	ChallengeTTL         int  `json:"challenge_ttl"`
	RateLimitWindow      int  `json:"rate_limit_window"`
	MaxChallengeAttempts int  `json:"max_challenge_attempts"`
	JavascriptChallenge  bool `json:"javascript_challenge"`
	ProofOfWork          bool `json:"proof_of_work"`
}

// PolicyMetadata identifies the generated document.
type PolicyMetadata struct {
	GeneratedBy   string `json:"generated_by"`
	ProjectName   string `json:"project_name"`
	AnubisEnabled bool   `json:"anubis_enabled"`
}

// =============================================================================
// Bot Policy Functions
// =============================================================================

// BuildBotPolicy assembles the bot policy of a topology. Bypass paths of
// conditional routes are allowed without a challenge.
func BuildBotPolicy(topo *topology.Topology, a project.Anubis) BotPolicy {
	allow := []PolicyRule{
		{Path: "/favicon.ico", Description: "Allow favicon requests"},
		{Path: "/.well-known/*", Description: "Allow well-known paths for certificates, etc."},
	}
	if a.ServeRobotsTxt {
		allow = append(allow, PolicyRule{Path: "/robots.txt", Description: "Allow robots.txt"})
	}
	allow = append(allow,
		PolicyRule{UserAgent: "*Googlebot*", Description: "Allow Google crawlers"},
		PolicyRule{UserAgent: "*bingbot*", Description: "Allow Bing crawlers"},
		PolicyRule{UserAgent: "*facebookexternalhit*", Description: "Allow Facebook link previews"},
		PolicyRule{UserAgent: "*Twitterbot*", Description: "Allow Twitter link previews"},
		PolicyRule{UserAgent: "*LinkedInBot*", Description: "Allow LinkedIn link previews"},
		PolicyRule{UserAgent: "*Slackbot*", Description: "Allow Slack link previews"},
	)

	seen := make(map[string]bool)
	for _, rule := range allow {
		if rule.Path != "" {
			seen[rule.Path] = true
		}
	}
	for _, n := range topo.Nodes {
		if n.Proxy == nil || n.Proxy.InstanceID > 1 {
			continue
		}
		for _, r := range n.Proxy.Routes {
			if r.Type != project.RouteConditional {
				continue
			}
			for _, p := range r.BypassPaths {
				if seen[p] {
					continue
				}
				seen[p] = true
				allow = append(allow, PolicyRule{Path: p, Description: "Bypass path of " + r.Domain})
			}
		}
	}

	return BotPolicy{
		Allow: allow,
		Challenge: []PolicyRule{
			{UserAgent: "Mozilla*", Description: "Challenge typical browser user agents"},
			{UserAgent: "*Chrome*", Description: "Challenge Chrome browsers"},
			{UserAgent: "*Firefox*", Description: "Challenge Firefox browsers"},
			{UserAgent: "*Safari*", Description: "Challenge Safari browsers"},
			{UserAgent: "*Edge*", Description: "Challenge Edge browsers"},
			{Path: "/*", RateLimit: &RateLimit{RequestsPerMinute: 60, Burst: 10}, Description: "Rate limit all paths"},
		},
		Block: []PolicyRule{
			{UserAgent: "*bot*", Description: "Block generic bots"},
			{UserAgent: "*crawler*", Description: "Block generic crawlers"},
			{UserAgent: "*scraper*", Description: "Block scrapers"},
			{UserAgent: "*wget*", Description: "Block wget"},
			{UserAgent: "*curl*", Description: "Block curl"},
			{UserAgent: "*python*", Description: "Block Python requests"},
			{Path: "/admin*", Description: "Block admin paths"},
			{Path: "/.env*", Description: "Block environment files"},
			{Path: "/wp-*", Description: "Block WordPress paths"},
		},
		Config: PolicyConfig{
			Difficulty:           a.Difficulty,
			ChallengeTTL:         3600,
			RateLimitWindow:      60,
			MaxChallengeAttempts: 3,
			JavascriptChallenge:  true,
			ProofOfWork:          true,
		},
		Metadata: PolicyMetadata{
			GeneratedBy:   "cerberus",
			ProjectName:   topo.Project,
			AnubisEnabled: a.Enabled,
		},
	}
}

// RenderBotPolicy renders anubis/botPolicy.json. It returns false when the
// topology has no Anubis node.
func RenderBotPolicy(topo *topology.Topology) (Artifact, bool, error) {
	if !topo.HasAnubis() {
		return Artifact{}, false, nil
	}

	data, err := json.MarshalIndent(BuildBotPolicy(topo, *topo.Anubis), "", "  ")
	if err != nil {
		return Artifact{}, false, NewRenderError(topology.BotPolicyPath, "", err)
	}

	return Artifact{Path: topology.BotPolicyPath, Content: append(data, '\n')}, true, nil
}
