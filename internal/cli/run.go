// Package cli implements the command line interface for iceagentd.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/agent"
	"github.com/gortc/iceagent/candidate"
	"github.com/gortc/iceagent/gather"
	"github.com/gortc/iceagent/internal/filter"
	"github.com/gortc/iceagent/internal/manage"
	"github.com/gortc/iceagent/internal/metrics"
	"github.com/gortc/iceagent/internal/reload"
	"github.com/gortc/iceagent/stunstack"
)

func normalize(address string) string {
	if address == "" {
		address = "0.0.0.0"
	}
	if !strings.Contains(address, ":") {
		address = address + ":0"
	}
	return address
}

// protocolNotSupported reports whether err indicates the local kernel
// lacks support for a requested network (seen when a host offers an
// IPv6 address but the agent process only has IPv4 routes wired up).
func protocolNotSupported(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	return strings.Contains(opErr.Err.Error(), "protocol not supported") ||
		strings.Contains(opErr.Err.Error(), "address family not supported")
}

func parseFilteringRules(v *viper.Viper, parentLogger *zap.Logger, key string) (*filter.List, error) {
	l := parentLogger.Named(key)
	type rawRuleItem struct {
		Net    string `mapstructure:"net"`
		Action string `mapstructure:"action"`
	}
	var rawRules []rawRuleItem
	if keyErr := v.UnmarshalKey("filter."+key+".rules", &rawRules); keyErr != nil {
		l.Error("failed to parse rules", zap.Error(keyErr))
		return nil, keyErr
	}
	var rules []filter.Rule
	for _, rawRule := range rawRules {
		var action filter.Action
		switch strings.ToLower(rawRule.Action) {
		case "allow":
			action = filter.Allow
		case "drop", "forbid", "deny", "block":
			action = filter.Deny
		case "pass", "none", "":
			action = filter.Pass
		default:
			l.Error("failed to parse action", zap.String("action", rawRule.Action))
			return nil, fmt.Errorf("unknown action %s", rawRule.Action)
		}
		rule, ruleErr := filter.StaticNetRule(action, rawRule.Net)
		if ruleErr != nil {
			l.Error("failed to parse subnet", zap.Error(ruleErr), zap.String("net", rawRule.Net))
			return nil, ruleErr
		}
		l.Info("added rule", zap.Stringer("action", action), zap.String("net", rawRule.Net))
		rules = append(rules, rule)
	}
	defaultAction := filter.Allow
	switch strings.ToLower(v.GetString("filter." + key + ".action")) {
	case "allow", "":
	case "drop", "forbid", "deny", "block":
		defaultAction = filter.Deny
	case "pass", "none":
		return nil, fmt.Errorf("default action cannot be pass")
	default:
		return nil, fmt.Errorf("unknown default action")
	}
	l.Info("default action set", zap.Stringer("action", defaultAction))
	return filter.NewFilter(defaultAction, rules...), nil
}

const keyPrometheusActive = "agent.prometheus.active"

func nominationFromString(s string) ice.NominationStrategy {
	switch strings.ToLower(s) {
	case "highest-priority":
		return ice.NominateHighestPriority
	case "first-host-or-reflexive":
		return ice.NominateFirstHostOrReflexiveValid
	default:
		return ice.NominateFirstValid
	}
}

func consentScopeFromString(s string) ice.ConsentScope {
	switch strings.ToLower(s) {
	case "all-succeeded":
		return ice.ConsentAllSucceeded
	case "selected-and-tcp":
		return ice.ConsentSelectedAndTCP
	default:
		return ice.ConsentSelectedOnly
	}
}

// applyConfig pushes viper-sourced values into cfg, used both to build
// an agent's initial configuration and to re-apply a reloaded config
// file to an already-running agent (ice.Config is swapped atomically
// under the hood, so every live Pace Maker observes the new values on
// its next read without the agent being restarted).
func applyConfig(cfg *ice.Config, v *viper.Viper) {
	if ms := v.GetInt("agent.ta-ms"); ms > 0 {
		cfg.SetTa(time.Duration(ms) * time.Millisecond)
	}
	if n := v.GetInt("agent.max-checklist-size"); n > 0 {
		cfg.SetMaxChecklistSize(n)
	}
	cfg.SetNominationStrategy(nominationFromString(v.GetString("agent.nomination")))
	cfg.SetConsentScope(consentScopeFromString(v.GetString("agent.consent-scope")))
	cfg.SetAllowLinkToGlobal(v.GetBool("agent.allow-link-local"))
	cfg.SetSkipRemotePrivateHosts(v.GetBool("agent.skip-remote-private-hosts"))
	cfg.SetNoKeepalives(v.GetBool("agent.no-keepalives"))
	if name := v.GetString("agent.software"); name != "" {
		cfg.SetSoftwareName(name)
	}
}

func buildConfig(v *viper.Viper) *ice.Config {
	cfg := ice.NewConfig()
	applyConfig(cfg, v)
	return cfg
}

// bootstrapRemotePeer applies a statically-configured remote ufrag and
// password to every stream, for operators wiring up a fixed peer before
// any out-of-band signaling channel exists. Most deployments set this
// per-session via the management API instead.
func bootstrapRemotePeer(v *viper.Viper, a *agent.Agent) {
	ufrag := v.GetString("agent.remote-ufrag")
	password := v.GetString("agent.remote-password")
	if ufrag == "" || password == "" {
		return
	}
	for _, s := range a.Streams() {
		s.SetRemoteCredentials(ufrag, password)
	}
}

// listener is one address this process will harvest host candidates
// against once the root command runs.
type listener struct {
	network string
	addr    string
}

func getListeners(v *viper.Viper, l *zap.Logger) []listener {
	var out []listener
	for _, addr := range v.GetStringSlice("agent.listen") {
		l.Info("got addr", zap.String("addr", addr))
		out = append(out, listener{network: "udp", addr: normalize(addr)})
	}
	return out
}

func buildAgent(v *viper.Viper, l *zap.Logger, reg prometheus.Registerer) (*agent.Agent, *metrics.Collector, error) {
	transport := stunstack.New(l.Named("stun"))
	harvester := gather.New(gather.Options{
		Log:               l.Named("gather"),
		AllowLinkToGlobal: v.GetBool("agent.allow-link-local"),
		ReusePort:         v.GetBool("agent.reuseport"),
	})
	a, err := agent.New(agent.Options{
		Log:         l,
		Config:      buildConfig(v),
		Transport:   transport,
		Harvesters:  []ice.Harvester{harvester},
		Controlling: v.GetBool("agent.controlling"),
	})
	if err != nil {
		return nil, nil, err
	}
	var collector *metrics.Collector
	if reg != nil {
		collector = metrics.New(prometheus.Labels{}, a, make(chan struct{}))
		reg.MustRegister(collector)
	}
	return a, collector, nil
}

// bootstrapStreams reads agent.streams (a list of "name:components"
// entries, e.g. "audio:1", "video:2") and adds one stream and that many
// components to a, harvesting host candidates for each.
func bootstrapStreams(ctx context.Context, v *viper.Viper, l *zap.Logger, a *agent.Agent) error {
	entries := v.GetStringSlice("agent.streams")
	if len(entries) == 0 {
		entries = []string{"data:1"}
	}
	for _, entry := range entries {
		name := entry
		components := 1
		if idx := strings.LastIndex(entry, ":"); idx >= 0 {
			name = entry[:idx]
			if n, err := strconv.Atoi(entry[idx+1:]); err == nil && n > 0 {
				components = n
			}
		}
		stream := a.AddStream(name)
		for id := 1; id <= components; id++ {
			comp := ice.NewComponent(name, id)
			stream.AddComponent(comp)
			if err := a.HarvestHost(ctx, stream, comp, candidate.UDP); err != nil {
				l.Error("failed to harvest host candidates",
					zap.String("stream", name), zap.Int("component", id), zap.Error(err))
				if !protocolNotSupported(err) {
					return err
				}
			}
		}
	}
	return nil
}

func getRoot(v *viper.Viper, listen func(log *zap.Logger, serverNet, laddr string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iceagentd",
		Short: "iceagentd is an ICE connectivity establishment agent",
		Run: func(cmd *cobra.Command, args []string) {
			l := getLogger(v)
			if cfgPath := v.ConfigFileUsed(); len(cfgPath) > 0 {
				l.Info("config file used", zap.String("path", v.ConfigFileUsed()))
			} else {
				l.Info("default configuration used")
			}
			if strings.Split(v.GetString("version"), ".")[0] != "1" {
				l.Fatal("unsupported config file version", zap.String("v", v.GetString("version")))
			}

			reg := prometheus.NewPedanticRegistry()
			var registerer prometheus.Registerer = reg
			if prometheusAddr := v.GetString("agent.prometheus.addr"); prometheusAddr != "" {
				l.Warn("running prometheus metrics", zap.String("addr", prometheusAddr))
				go func() {
					h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
						ErrorLog:      zap.NewStdLog(l),
						ErrorHandling: promhttp.HTTPErrorOnError,
					})
					if listenErr := http.ListenAndServe(prometheusAddr, h); listenErr != nil {
						l.Error("prometheus failed to listen", zap.String("addr", prometheusAddr), zap.Error(listenErr))
					}
				}()
			} else {
				v.SetDefault(keyPrometheusActive, false)
				registerer = nil
			}
			if pprofAddr := v.GetString("agent.pprof"); pprofAddr != "" {
				l.Warn("running pprof", zap.String("addr", pprofAddr))
				go func() {
					mux := http.NewServeMux()
					mux.HandleFunc("/debug/pprof/", pprof.Index)
					mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
					mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
					mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
					mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
					if listenErr := http.ListenAndServe(pprofAddr, mux); listenErr != nil {
						l.Error("pprof failed to listen", zap.String("addr", pprofAddr), zap.Error(listenErr))
					}
				}()
			}

			filterLog := l.Named("filter")
			if _, err := parseFilteringRules(v, filterLog, "peer"); err != nil {
				l.Fatal("failed to parse peer rules", zap.Error(err))
			}

			a, _, err := buildAgent(v, l, registerer)
			if err != nil {
				l.Fatal("failed to build agent", zap.Error(err))
			}
			defer a.Free()

			ctx := context.Background()
			if err := bootstrapStreams(ctx, v, l, a); err != nil {
				l.Fatal("failed to bootstrap streams", zap.Error(err))
			}
			bootstrapRemotePeer(v, a)

			n := reload.NewNotifier()
			go func() {
				for range n.C {
					l.Info("trying to update config")
					if readErr := v.ReadInConfig(); readErr != nil {
						l.Error("failed to read config", zap.Error(readErr))
						continue
					}
					applyConfig(a.Config(), v)
					l.Info("config updated")
				}
			}()
			if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
				if stopWatch, watchErr := reload.WatchFile(cfgPath, n, l.Named("reload")); watchErr != nil {
					l.Warn("failed to watch config file", zap.Error(watchErr))
				} else {
					defer stopWatch()
				}
			}

			if apiAddr := v.GetString("api.addr"); apiAddr != "" {
				m := manage.NewManager(l.Named("api"), n, a)
				go func() {
					l.Info("api listening", zap.String("addr", apiAddr))
					if listenErr := http.ListenAndServe(apiAddr, m); listenErr != nil {
						l.Error("failed to listen on management API addr", zap.String("addr", apiAddr), zap.Error(listenErr))
					}
				}()
			}

			wg := new(sync.WaitGroup)
			for _, ln := range getListeners(v, l) {
				l.Info("iceagentd listening", zap.String("addr", ln.addr), zap.String("network", ln.network))
				wg.Add(1)
				go func(network, addr string) {
					defer wg.Done()
					if lErr := listen(l, network, addr); lErr != nil {
						l.Error("failed to listen", zap.Error(lErr))
					}
				}(ln.network, ln.addr)
			}
			wg.Wait()
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/iceagentd.yml)")
	cmd.Flags().StringArrayP("listen", "l", nil, "extra listen address (diagnostic; host candidates are harvested automatically)")
	cmd.Flags().String("pprof", "", "pprof address if specified")
	mustBind(v.BindPFlag("agent.listen", cmd.Flags().Lookup("listen")))
	mustBind(v.BindPFlag("agent.pprof", cmd.Flags().Lookup("pprof")))
	return cmd
}

// ListenUDPAndServe is the default listen function passed to getRoot: it
// is a diagnostic no-op binder used to confirm a configured address is
// reachable before the agent's own harvester binds its real sockets.
func ListenUDPAndServe(log *zap.Logger, serverNet, laddr string) error {
	c, err := net.ListenPacket(serverNet, laddr)
	if err != nil {
		return err
	}
	return c.Close()
}
