// Package api exposes the daemon's HTTP surface: deploy submission,
// per-deployment event history, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flotilla-deploy/flotilla/pkg/deployer"
	"github.com/flotilla-deploy/flotilla/pkg/history"
	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

// Deployer is the slice of the orchestrator the transport needs.
type Deployer interface {
	Deploy(ctx context.Context, req deployer.Request) (string, error)
}

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NewRoute().Name("PostDeploy").Methods("POST").Path("/v1/deployments")
	r.NewRoute().Name("ListEvents").Methods("GET").Path("/v1/deployments/{name}/events")
	r.NewRoute().Name("Metrics").Methods("GET").Path("/metrics")
	return r
}

func NewHandler(d Deployer, events history.EventStore, r *mux.Router, logger log.Logger) http.Handler {
	for name, h := range map[string]http.Handler{
		"PostDeploy": handlePostDeploy(d),
		"ListEvents": handleListEvents(events),
		"Metrics":    promhttp.Handler(),
	} {
		handler := logging(h, log.With(logger, "route", name))
		handler = instrument(name, handler)
		r.Get(name).Handler(handler)
	}
	return r
}

func handlePostDeploy(d Deployer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req := deployer.Request{
			ManifestText:     body,
			CloudConfigRef:   r.FormValue("cloud_config"),
			RuntimeConfigRef: r.FormValue("runtime_config"),
			Options: plan.Options{
				DryRun: r.FormValue("dry_run") == "true",
				New:    r.FormValue("new") == "true",
				Deploy: r.FormValue("deploy") != "false",
			},
		}
		path, err := d.Deploy(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, path)
	})
}

func handleListEvents(events history.EventStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		list, err := events.EventsForDeployment(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(list); err != nil {
			writeError(w, http.StatusInternalServerError, err)
		}
	})
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintln(w, err.Error())
}

func logging(next http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Log("method", r.Method, "url", r.URL.String())
		next.ServeHTTP(w, r)
	})
}
