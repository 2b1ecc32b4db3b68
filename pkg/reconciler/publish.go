package reconciler

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Published databag keys
const (
	KeyHostname          = "hostname"
	KeyIngesters         = "ingesters"
	KeyScrapeJobs        = "scrape_jobs"
	KeyScrapeMetadata    = "scrape_metadata"
	KeyDashboards        = "dashboards"
	KeyGrafanaSourceData = "grafana_source_data"
)

// Ingester is one receiver advertised to tracing requirers
type Ingester struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

type scrapeJob struct {
	MetricsPath   string         `json:"metrics_path"`
	StaticConfigs []staticConfig `json:"static_configs"`
}

type staticConfig struct {
	Targets []string `json:"targets"`
}

type scrapeMetadata struct {
	Model       string `json:"model"`
	Application string `json:"application"`
	Unit        string `json:"unit"`
}

type sourceData struct {
	Model       string `json:"model"`
	Application string `json:"application"`
	Type        string `json:"type"`
	URL         string `json:"url"`
}

type dashboardTemplate struct {
	Charm   string `json:"charm"`
	Content string `json:"content"`
}

// IngesterType maps a protocol to the ingester type name tracing
// requirers expect, e.g. "otlp-grpc" to "otlp_grpc" and "tempo-http" to
// "tempo"
func IngesterType(p types.ProtocolKind) string {
	if p == types.ProtocolTempoHTTP {
		return "tempo"
	}
	return strings.ReplaceAll(string(p), "-", "_")
}

// Ingesters lists the enabled receivers as tracing ingesters
func Ingesters(wc types.WorkloadConfig) []Ingester {
	out := make([]Ingester, 0, len(wc.Receivers))
	for _, r := range wc.Receivers {
		out = append(out, Ingester{Type: IngesterType(r.Protocol), Port: r.Port})
	}
	return out
}

// publish writes every outgoing databag. Each unit publishes its own peer
// bag; application bags are written by the leader only.
func (r *Reconciler) publish(states types.AllRelationStates, wc types.WorkloadConfig, applied *types.AppliedState, leader bool) error {
	var errs error

	errs = multierr.Append(errs, r.publishPeer(applied))
	if !leader {
		return errs
	}

	app := r.cfg.Unit.App
	errs = multierr.Append(errs, r.publishIf(states.Tracing.IsPresent(), types.RelationTracing, app, func() (types.Databag, error) {
		return r.tracingBag(wc)
	}))
	errs = multierr.Append(errs, r.publishIf(states.Metrics.IsPresent(), types.RelationMetrics, app, func() (types.Databag, error) {
		return r.metricsBag(wc)
	}))
	errs = multierr.Append(errs, r.publishIf(states.Dashboard.IsPresent(), types.RelationDashboard, app, func() (types.Databag, error) {
		return r.dashboardBag(wc)
	}))
	return errs
}

func (r *Reconciler) publishPeer(applied *types.AppliedState) error {
	var version uint64
	if applied != nil {
		version = applied.Version
	}
	_, err := r.outbox.Publish(types.RelationPeers, r.cfg.Unit.ID, types.Databag{
		"unit":           r.cfg.Unit.ID,
		"address":        r.cfg.Unit.Address,
		"config-version": strconv.FormatUint(version, 10),
	})
	return err
}

// publishIf writes the bag built by fn while the relation is present and
// retracts it otherwise
func (r *Reconciler) publishIf(present bool, kind types.RelationKind, name string, fn func() (types.Databag, error)) error {
	if !present {
		return r.outbox.Remove(kind, name)
	}
	bag, err := fn()
	if err != nil {
		return fmt.Errorf("build %s databag: %w", kind, err)
	}
	changed, err := r.outbox.Publish(kind, name, bag)
	if err != nil {
		return err
	}
	if changed {
		r.logger.Info().Str("relation", string(kind)).Msg("relation data published")
	}
	return nil
}

func (r *Reconciler) hostname(wc types.WorkloadConfig) string {
	if wc.ExternalHost != "" {
		return wc.ExternalHost
	}
	return r.cfg.Unit.Address
}

func (r *Reconciler) tracingBag(wc types.WorkloadConfig) (types.Databag, error) {
	ingesters, err := json.Marshal(Ingesters(wc))
	if err != nil {
		return nil, err
	}
	return types.Databag{
		KeyHostname:  r.hostname(wc),
		KeyIngesters: string(ingesters),
	}, nil
}

func (r *Reconciler) metricsBag(wc types.WorkloadConfig) (types.Databag, error) {
	target := net.JoinHostPort(r.cfg.Unit.Address, strconv.Itoa(wc.HTTPPort))
	jobs, err := json.Marshal([]scrapeJob{{
		MetricsPath:   "/metrics",
		StaticConfigs: []staticConfig{{Targets: []string{target}}},
	}})
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(scrapeMetadata{
		Model:       r.cfg.Unit.Model,
		Application: r.cfg.Unit.App,
		Unit:        r.cfg.Unit.ID,
	})
	if err != nil {
		return nil, err
	}
	return types.Databag{
		KeyScrapeJobs:     string(jobs),
		KeyScrapeMetadata: string(meta),
	}, nil
}

func (r *Reconciler) dashboardBag(wc types.WorkloadConfig) (types.Databag, error) {
	scheme := "http"
	if wc.TLS.Enabled {
		scheme = "https"
	}
	source, err := json.Marshal(sourceData{
		Model:       r.cfg.Unit.Model,
		Application: r.cfg.Unit.App,
		Type:        "tempo",
		URL:         scheme + "://" + net.JoinHostPort(r.hostname(wc), strconv.Itoa(wc.HTTPPort)),
	})
	if err != nil {
		return nil, err
	}

	content, err := json.Marshal(tempoDashboard(r.cfg.Unit.App))
	if err != nil {
		return nil, err
	}
	dashboards, err := json.Marshal(map[string]map[string]dashboardTemplate{
		"templates": {
			"file:tempo.json": {Charm: r.cfg.Unit.App, Content: string(content)},
		},
	})
	if err != nil {
		return nil, err
	}
	return types.Databag{
		KeyDashboards:        string(dashboards),
		KeyGrafanaSourceData: string(source),
	}, nil
}

// tempoDashboard is the overview dashboard offered to grafana
func tempoDashboard(app string) map[string]interface{} {
	panel := func(id int, title, expr string) map[string]interface{} {
		return map[string]interface{}{
			"id":      id,
			"type":    "timeseries",
			"title":   title,
			"targets": []map[string]string{{"expr": expr, "refId": "A"}},
		}
	}
	return map[string]interface{}{
		"title": "Tempo / " + app,
		"uid":   "tempo-" + app,
		"tags":  []string{"tempo", "tracing"},
		"panels": []map[string]interface{}{
			panel(1, "Spans received", `sum(rate(tempo_distributor_spans_received_total[5m]))`),
			panel(2, "Traces created", `sum(rate(tempo_ingester_traces_created_total[5m]))`),
			panel(3, "Bytes received", `sum(rate(tempo_distributor_bytes_received_total[5m]))`),
		},
	}
}
