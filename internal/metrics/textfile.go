// Package metrics renders run counters in the Prometheus text exposition
// format for a node_exporter textfile collector.
package metrics

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/rotisserie/eris"
)

const namespace = "leadflow"

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// MetricName maps a run counter name to a Prometheus metric name.
func MetricName(counter string) string {
	name := invalidChars.ReplaceAllString(strings.ToLower(counter), "_")
	return namespace + "_run_" + strings.Trim(name, "_")
}

func strPtr(s string) *string                  { return &s }
func floatPtr(f float64) *float64              { return &f }
func typePtr(t dto.MetricType) *dto.MetricType { return &t }

// Families converts a counter snapshot into gauge families labelled with
// the channel. A leadflow_run_timestamp_seconds gauge records when the
// snapshot was taken.
func Families(channelID string, counters map[string]int64, at time.Time) []*dto.MetricFamily {
	labels := []*dto.LabelPair{{Name: strPtr("channel"), Value: strPtr(channelID)}}

	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]*dto.MetricFamily, 0, len(names)+1)
	for _, k := range names {
		out = append(out, &dto.MetricFamily{
			Name: strPtr(MetricName(k)),
			Help: strPtr("Run counter " + k + " from the last completed run."),
			Type: typePtr(dto.MetricType_GAUGE),
			Metric: []*dto.Metric{{
				Label: labels,
				Gauge: &dto.Gauge{Value: floatPtr(float64(counters[k]))},
			}},
		})
	}
	out = append(out, &dto.MetricFamily{
		Name: strPtr(namespace + "_run_timestamp_seconds"),
		Help: strPtr("Unix time the last run finished."),
		Type: typePtr(dto.MetricType_GAUGE),
		Metric: []*dto.Metric{{
			Label: labels,
			Gauge: &dto.Gauge{Value: floatPtr(float64(at.Unix()))},
		}},
	})
	return out
}

// Write renders families to w.
func Write(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return eris.Wrapf(err, "metrics: encode %s", mf.GetName())
		}
	}
	return nil
}

// WriteTextfile renders the snapshot and atomically replaces path.
func WriteTextfile(path, channelID string, counters map[string]int64, at time.Time) error {
	var buf bytes.Buffer
	if err := Write(&buf, Families(channelID, counters, at)); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "metrics: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*.prom")
	if err != nil {
		return eris.Wrap(err, "metrics: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "metrics: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "metrics: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), path), "metrics: rename textfile")
}
