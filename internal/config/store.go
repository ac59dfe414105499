package config

import "sync"

// Store is the process-wide, mutex-guarded configuration singleton. Every
// getter returns a deep copy so that callers never observe a write in
// progress or mutate shared state through an alias; every setter replaces
// its field wholesale under the same exclusive lock. No reader ever takes
// the lock across a network call — snapshots are copied out and used
// lock-free by the caller.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore wraps an already-loaded Config in a Store. The Config passed in
// is copied; the caller's copy may be discarded afterward.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cloneConfig(cfg)}
}

// Snapshot returns a deep copy of the full configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.cfg)
}

// Provider returns a deep copy of a single provider slot by canonical name.
// The bool is false for an unrecognized name.
func (s *Store) Provider(name string) (ProviderConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch name {
	case "openai":
		return s.cfg.OpenAI, true
	case "anthropic":
		return s.cfg.Anthropic, true
	case "gemini":
		return s.cfg.Gemini, true
	case "ollama":
		return s.cfg.Ollama, true
	case "mistral":
		return s.cfg.Mistral, true
	case "cohere":
		return s.cfg.Cohere, true
	default:
		return ProviderConfig{}, false
	}
}

// ConfiguredProviders returns the names of every slot with a usable
// endpoint, in the fixed declared order used throughout the dispatcher.
func (s *Store) ConfiguredProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama", "mistral", "cohere"} {
		if p, _ := s.providerLocked(name); p.Configured() {
			out = append(out, name)
		}
	}
	return out
}

func (s *Store) providerLocked(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return s.cfg.OpenAI, true
	case "anthropic":
		return s.cfg.Anthropic, true
	case "gemini":
		return s.cfg.Gemini, true
	case "ollama":
		return s.cfg.Ollama, true
	case "mistral":
		return s.cfg.Mistral, true
	case "cohere":
		return s.cfg.Cohere, true
	default:
		return ProviderConfig{}, false
	}
}

// ReplaceProvider overwrites one provider slot under exclusive lock.
func (s *Store) ReplaceProvider(name string, p ProviderConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "openai":
		s.cfg.OpenAI = p
	case "anthropic":
		s.cfg.Anthropic = p
	case "gemini":
		s.cfg.Gemini = p
	case "ollama":
		s.cfg.Ollama = p
	case "mistral":
		s.cfg.Mistral = p
	case "cohere":
		s.cfg.Cohere = p
	default:
		return false
	}
	return true
}

// SystemPrompt returns the current gateway-level system prompt.
func (s *Store) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.SystemPrompt
}

// ReplaceSystemPrompt sets the gateway-level system prompt.
func (s *Store) ReplaceSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SystemPrompt = prompt
}

// Guardrails returns a copy of the active guardrail configuration.
func (s *Store) Guardrails() GuardrailConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGuardrails(s.cfg.Guardrails)
}

// ReplaceGuardrails overwrites the guardrail configuration.
func (s *Store) ReplaceGuardrails(g GuardrailConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Guardrails = cloneGuardrails(g)
}

// Logging returns a copy of the active logging configuration.
func (s *Store) Logging() LoggingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Logging
}

// ReplaceLogging overwrites the logging configuration.
func (s *Store) ReplaceLogging(l LoggingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Logging = l
}

// DefaultPlan returns the process-wide default rate-limit plan.
func (s *Store) DefaultPlan() RateLimitPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.DefaultPlan
}

// ReplaceDefaultPlan overwrites the default plan. It does not touch
// rate-limiter state; the admin handler calls the in-memory limiter's
// ResetDefaultPlanIPs after this returns to reset every IP without a
// client-specific plan.
func (s *Store) ReplaceDefaultPlan(p RateLimitPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = "default"
	s.cfg.DefaultPlan = p
}

// WildcardPlan returns the `*.*.*.*` plan.
func (s *Store) WildcardPlan() RateLimitPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.WildcardPlan
}

// ReplaceWildcardPlan overwrites the wildcard plan.
func (s *Store) ReplaceWildcardPlan(p RateLimitPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = "wildcard"
	s.cfg.WildcardPlan = p
}

// ClientPlan returns the plan configured for an exact client IP, if any.
func (s *Store) ClientPlan(ip string) (RateLimitPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.cfg.ClientPlans[ip]
	return p, ok
}

// ReplaceClientPlan sets (or overwrites) the plan for an exact client IP.
func (s *Store) ReplaceClientPlan(ip string, p RateLimitPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = "client"
	if s.cfg.ClientPlans == nil {
		s.cfg.ClientPlans = map[string]RateLimitPlan{}
	}
	s.cfg.ClientPlans[ip] = p
}

// DeleteClientPlan removes a client-specific plan, falling back to wildcard
// or default precedence for that IP.
func (s *Store) DeleteClientPlan(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cfg.ClientPlans, ip)
}

// HasClientPlan reports whether an exact IP has a client-specific plan —
// used by the rate limiter to decide which IPs to leave alone on a default
// plan change.
func (s *Store) HasClientPlan(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cfg.ClientPlans[ip]
	return ok
}

// ServiceRoute returns the passthrough target base URL registered for
// serviceName, if any.
func (s *Store) ServiceRoute(serviceName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.cfg.ServiceRoutes[serviceName]
	return url, ok
}

// ServiceRoutes returns a copy of every registered passthrough route.
func (s *Store) ServiceRoutes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cfg.ServiceRoutes))
	for k, v := range s.cfg.ServiceRoutes {
		out[k] = v
	}
	return out
}

// ReplaceServiceRoute sets (or overwrites) the passthrough target for
// serviceName.
func (s *Store) ReplaceServiceRoute(serviceName, targetBaseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.ServiceRoutes == nil {
		s.cfg.ServiceRoutes = map[string]string{}
	}
	s.cfg.ServiceRoutes[serviceName] = targetBaseURL
}

// DeleteServiceRoute removes a passthrough route.
func (s *Store) DeleteServiceRoute(serviceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cfg.ServiceRoutes, serviceName)
}

// CacheTTL returns the configured cache TTL.
func (s *Store) CacheTTL() (ttl int64, refreshOnHit bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.cfg.CacheTTL.Seconds()), s.cfg.RefreshCreatedOnHit
}

func cloneConfig(c Config) Config {
	out := c
	out.CORSOrigins = append([]string(nil), c.CORSOrigins...)
	out.Guardrails = cloneGuardrails(c.Guardrails)
	out.CacheExcludeExact = append([]string(nil), c.CacheExcludeExact...)
	out.CacheExcludePattern = append([]string(nil), c.CacheExcludePattern...)
	out.ClientPlans = make(map[string]RateLimitPlan, len(c.ClientPlans))
	for k, v := range c.ClientPlans {
		out.ClientPlans[k] = v
	}
	out.ServiceRoutes = make(map[string]string, len(c.ServiceRoutes))
	for k, v := range c.ServiceRoutes {
		out.ServiceRoutes[k] = v
	}
	return out
}

func cloneGuardrails(g GuardrailConfig) GuardrailConfig {
	out := g
	out.BannedPhrases = append([]string(nil), g.BannedPhrases...)
	return out
}
