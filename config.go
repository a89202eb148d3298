package ice

import (
	"sync/atomic"
	"time"
)

// NominationStrategy selects how the controlling agent picks the pair to
// nominate for a component, RFC 8445 Section 8.1.1.
type NominationStrategy byte

// Nomination strategies.
const (
	NominateFirstValid NominationStrategy = iota
	NominateHighestPriority
	NominateFirstHostOrReflexiveValid
)

// ConsentScope selects which pairs are kept fresh by the consent-freshness
// loop, RFC 7675.
type ConsentScope byte

// Consent-freshness scopes.
const (
	ConsentSelectedOnly ConsentScope = iota
	ConsentSelectedAndTCP
	ConsentAllSucceeded
)

// config is the immutable snapshot of an agent's tunable parameters.
// Swapped atomically so readers on the Pace Maker's hot path never block
// a concurrent reconfiguration, the same pattern internal/server.config
// uses for its request-handling hot path.
type config struct {
	ta                       time.Duration // inter-check spacing unit
	maxChecklistSize         int           // total pairs across all streams
	terminationDelay         time.Duration // COMPLETED -> TERMINATED wait
	checklistTimeout         time.Duration // Pace Maker initiation window
	consentInterval          time.Duration // between keepalive rounds
	consentMaxRetransmits    int
	consentOriginalWait      time.Duration
	consentMaxWait           time.Duration
	noKeepalives             bool
	useHostHarvester         bool
	allowLinkToGlobal        bool
	alwaysSign               bool // FINGERPRINT on all messages
	udpTCPPriorityModifier   int  // non-standard additive priority tweak, advisory only
	skipRemotePrivateHosts   bool
	nomination               NominationStrategy
	consentScope             ConsentScope
	softwareName             string
}

func defaultConfig() config {
	return config{
		ta:                     20 * time.Millisecond,
		maxChecklistSize:       12,
		terminationDelay:       3000 * time.Millisecond,
		checklistTimeout:       3000 * time.Millisecond,
		consentInterval:        15000 * time.Millisecond,
		consentMaxRetransmits:  30,
		consentOriginalWait:    500 * time.Millisecond,
		consentMaxWait:         500 * time.Millisecond,
		noKeepalives:           true,
		useHostHarvester:       true,
		allowLinkToGlobal:      false,
		alwaysSign:             true,
		udpTCPPriorityModifier: 0,
		skipRemotePrivateHosts: false,
		nomination:             NominateFirstValid,
		consentScope:           ConsentSelectedOnly,
		softwareName:           "iceagent",
	}
}

// Config is an agent's reconfigurable parameter set. Value stored behind
// atomic.Value; use NewConfig and the setters to build one, then pass it
// to agent.New or Agent.SetConfig.
type Config struct {
	v atomic.Value
}

// NewConfig returns a Config holding the default snapshot.
func NewConfig() *Config {
	c := &Config{}
	c.v.Store(defaultConfig())
	return c
}

func (c *Config) snapshot() config { return c.v.Load().(config) }

func (c *Config) mutate(f func(config) config) {
	c.v.Store(f(c.snapshot()))
}

// Ta returns the pacing interval between ordinary connectivity checks.
func (c *Config) Ta() time.Duration { return c.snapshot().ta }

// SetTa sets the pacing interval.
func (c *Config) SetTa(d time.Duration) { c.mutate(func(v config) config { v.ta = d; return v }) }

// MaxChecklistSize returns the cap applied across all of an agent's
// streams' check lists combined.
func (c *Config) MaxChecklistSize() int { return c.snapshot().maxChecklistSize }

// SetMaxChecklistSize sets the cap applied across check lists.
func (c *Config) SetMaxChecklistSize(n int) {
	c.mutate(func(v config) config { v.maxChecklistSize = n; return v })
}

// ChecklistTimeout returns the Pace Maker initiation window: it bounds
// how long after the first check a check list keeps starting new ones,
// not the retry budget of any individual transaction.
func (c *Config) ChecklistTimeout() time.Duration { return c.snapshot().checklistTimeout }

// SetChecklistTimeout sets the Pace Maker initiation window.
func (c *Config) SetChecklistTimeout(d time.Duration) {
	c.mutate(func(v config) config { v.checklistTimeout = d; return v })
}

// NominationStrategy returns the controlling-side nomination strategy.
func (c *Config) NominationStrategy() NominationStrategy { return c.snapshot().nomination }

// SetNominationStrategy sets the controlling-side nomination strategy.
func (c *Config) SetNominationStrategy(s NominationStrategy) {
	c.mutate(func(v config) config { v.nomination = s; return v })
}

// ConsentScope returns which pairs the consent-freshness loop keeps warm.
func (c *Config) ConsentScope() ConsentScope { return c.snapshot().consentScope }

// SetConsentScope sets which pairs the consent-freshness loop keeps warm.
func (c *Config) SetConsentScope(s ConsentScope) {
	c.mutate(func(v config) config { v.consentScope = s; return v })
}

// ConsentInterval returns the nominal interval between consent-freshness
// rounds.
func (c *Config) ConsentInterval() time.Duration { return c.snapshot().consentInterval }

// SetConsentInterval sets the nominal interval between consent-freshness
// rounds.
func (c *Config) SetConsentInterval(d time.Duration) {
	c.mutate(func(v config) config { v.consentInterval = d; return v })
}

// ConsentMaxRetransmits returns the retransmission budget for one
// consent-freshness check.
func (c *Config) ConsentMaxRetransmits() int { return c.snapshot().consentMaxRetransmits }

// ConsentOriginalWait returns the initial RTO for a consent-freshness
// check.
func (c *Config) ConsentOriginalWait() time.Duration { return c.snapshot().consentOriginalWait }

// ConsentMaxWait returns the RTO cap for a consent-freshness check.
func (c *Config) ConsentMaxWait() time.Duration { return c.snapshot().consentMaxWait }

// NoKeepalives reports whether the keepalive task is disabled.
func (c *Config) NoKeepalives() bool { return c.snapshot().noKeepalives }

// SetNoKeepalives toggles the keepalive task.
func (c *Config) SetNoKeepalives(v bool) {
	c.mutate(func(cfg config) config { cfg.noKeepalives = v; return cfg })
}

// UseHostHarvester reports whether dynamic host harvesting is enabled.
func (c *Config) UseHostHarvester() bool { return c.snapshot().useHostHarvester }

// AllowLinkToGlobal reports whether a link-local local candidate may be
// paired with a global-scope remote candidate.
func (c *Config) AllowLinkToGlobal() bool { return c.snapshot().allowLinkToGlobal }

// SetAllowLinkToGlobal sets whether link-local-to-global pairing is
// permitted.
func (c *Config) SetAllowLinkToGlobal(v bool) {
	c.mutate(func(cfg config) config { cfg.allowLinkToGlobal = v; return cfg })
}

// AlwaysSign reports whether FINGERPRINT is attached to every outgoing
// message.
func (c *Config) AlwaysSign() bool { return c.snapshot().alwaysSign }

// UDPTCPPriorityModifier returns the non-standard additive priority
// tweak. Defaults to 0 and is advisory only; no component in this agent
// currently reads it.
func (c *Config) UDPTCPPriorityModifier() int { return c.snapshot().udpTCPPriorityModifier }

// SkipRemotePrivateHosts reports whether RFC1918 remote host candidates
// should be dropped during harvesting.
func (c *Config) SkipRemotePrivateHosts() bool { return c.snapshot().skipRemotePrivateHosts }

// SetSkipRemotePrivateHosts toggles dropping RFC1918 remote hosts.
func (c *Config) SetSkipRemotePrivateHosts(v bool) {
	c.mutate(func(cfg config) config { cfg.skipRemotePrivateHosts = v; return cfg })
}

// TerminationDelay returns the grace period an agent waits after
// completion before transitioning to Terminated.
func (c *Config) TerminationDelay() time.Duration { return c.snapshot().terminationDelay }

// SoftwareName returns the SOFTWARE attribute value advertised on
// outgoing STUN messages.
func (c *Config) SoftwareName() string { return c.snapshot().softwareName }

// SetSoftwareName sets the SOFTWARE attribute value.
func (c *Config) SetSoftwareName(name string) {
	c.mutate(func(v config) config { v.softwareName = name; return v })
}
