/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ppsd

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// JSONStats exposes the counter set over HTTP as plain JSON (for
// ad-hoc curl checks) and, on the same
// mux, as Prometheus metrics via a gauge vector kept in lockstep with
// every SetCounter/UpdateCounterBy call.
type JSONStats struct {
	Stats

	registry *prometheus.Registry
	gauges   *prometheus.GaugeVec
}

// NewJSONStats returns a JSONStats with its own Prometheus registry.
func NewJSONStats() *JSONStats {
	registry := prometheus.NewRegistry()
	gauges := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ppsd",
		Name:      "counter",
		Help:      "pps-clientd control-loop counters",
	}, []string{"name"})
	registry.MustRegister(gauges)
	return &JSONStats{Stats: *NewStats(), registry: registry, gauges: gauges}
}

// SetCounter overrides Stats.SetCounter to keep the Prometheus gauge
// in sync with the plain counter map.
func (s *JSONStats) SetCounter(key string, val int64) {
	s.Stats.SetCounter(key, val)
	s.gauges.WithLabelValues(key).Set(float64(val))
}

// UpdateCounterBy overrides Stats.UpdateCounterBy likewise.
func (s *JSONStats) UpdateCounterBy(key string, count int64) {
	s.Stats.UpdateCounterBy(key, count)
	s.gauges.WithLabelValues(key).Set(float64(s.Get()[key]))
}

// Serve runs the stats HTTP server until ctx is cancelled.
func (s *JSONStats) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("ppsd stats server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *JSONStats) handleJSON(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(s.Get())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("ppsd: failed to write stats response: %v", err)
	}
}

