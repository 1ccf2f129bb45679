// Package ruleengine implements a koanf-backed policy Engine: compiled
// policy groups loaded once from a YAML document and held in memory,
// so lookup is a pure in-memory operation and never a blocking I/O
// call on the core thread's behalf.
package ruleengine

import (
	"fmt"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/flowmesh/routercore/internal/pattern"
	"github.com/flowmesh/routercore/internal/policy"
)

// userRule maps a (host pattern) to a group name for one vhost; a
// document may list multiple rules per vhost, matched first-to-last.
type userRule struct {
	HostPattern string `koanf:"hostPattern"`
	Group       string `koanf:"group"`
}

type groupDoc struct {
	MaxFrameSize         int      `koanf:"maxFrameSize"`
	MaxSessions          int      `koanf:"maxSessions"`
	MaxSenders           int      `koanf:"maxSenders"`
	MaxReceivers         int      `koanf:"maxReceivers"`
	AllowAnonymousSender bool     `koanf:"allowAnonymousSender"`
	AllowDynamicSource   bool     `koanf:"allowDynamicSource"`
	AllowUserIDProxy     bool     `koanf:"allowUserIdProxy"`
	Sources              string   `koanf:"sources"`
	Targets              string   `koanf:"targets"`
	SourcePatterns       []string `koanf:"sourcePatterns"`
	TargetPatterns       []string `koanf:"targetPatterns"`
}

type vhostDoc struct {
	Rules  []userRule          `koanf:"rules"`
	Groups map[string]groupDoc `koanf:"groups"`
}

type doc struct {
	Vhosts map[string]vhostDoc `koanf:"vhosts"`
}

// Static is a compiled-at-load-time policy.Engine. Its vhost rules
// never change after Load; the only mutable state is the compiled
// settings cache, which mu guards.
type Static struct {
	vhosts map[string]vhostDoc
	closer func(connID string)

	mu            sync.Mutex
	settingsCache map[string]*policy.Settings
}

// Load parses a YAML policy document into a Static engine. closer is
// invoked for Engine.CloseConnection; it may be nil.
func Load(yamlDoc []byte, closer func(connID string)) (*Static, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(yamlDoc), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("policy: parse document: %w", err)
	}
	var d doc
	if err := k.Unmarshal("", &d); err != nil {
		return nil, fmt.Errorf("policy: unmarshal document: %w", err)
	}
	return &Static{
		vhosts:        d.Vhosts,
		closer:        closer,
		settingsCache: make(map[string]*policy.Settings),
	}, nil
}

// LookupUser implements policy.Engine: match host-ip against the
// vhost's ordered rule list and return the first rule's group, or ""
// if none match or the vhost is unknown.
func (s *Static) LookupUser(user, hostIP, vhost, connName, connID string) string {
	vh, ok := s.vhosts[vhost]
	if !ok {
		return ""
	}
	for _, r := range vh.Rules {
		if r.HostPattern == "*" || r.HostPattern == hostIP {
			return r.Group
		}
		if tok, ok := pattern.UserSubstitute(user, r.HostPattern); ok && tok == hostIP {
			return r.Group
		}
	}
	return ""
}

// LookupSettings compiles (and caches) the named group's
// policy.Settings for vhost.
func (s *Static) LookupSettings(vhost, group string) (*policy.Settings, bool) {
	key := vhost + "\x00" + group
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.settingsCache[key]; ok {
		return cached, true
	}
	vh, ok := s.vhosts[vhost]
	if !ok {
		return nil, false
	}
	gd, ok := vh.Groups[group]
	if !ok {
		return nil, false
	}
	settings := &policy.Settings{
		GroupName:            group,
		Vhost:                vhost,
		MaxFrameSize:         gd.MaxFrameSize,
		MaxSessions:          gd.MaxSessions,
		MaxSenders:           gd.MaxSenders,
		MaxReceivers:         gd.MaxReceivers,
		AllowAnonymousSender: gd.AllowAnonymousSender,
		AllowDynamicSource:   gd.AllowDynamicSource,
		AllowUserIDProxy:     gd.AllowUserIDProxy,
		Sources:              gd.Sources,
		Targets:              gd.Targets,
	}
	if len(gd.SourcePatterns) > 0 {
		settings.SourceTree = pattern.NewTree(gd.SourcePatterns)
	}
	if len(gd.TargetPatterns) > 0 {
		settings.TargetTree = pattern.NewTree(gd.TargetPatterns)
	}
	s.settingsCache[key] = settings
	return settings, true
}

// CloseConnection delegates to the configured closer, if any.
func (s *Static) CloseConnection(connID string) {
	if s.closer != nil {
		s.closer(connID)
	}
}
