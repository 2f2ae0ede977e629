package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"yuzu/rendezvous/internal/health"
	"yuzu/rendezvous/internal/peerws"
)

const healthTimeout = 2 * time.Second

type Deps struct {
	Store       health.Store
	Peers       *peerws.Server
	CORSOrigins []string
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", getOnly(health.Handler(d.Store, healthTimeout)))
	mux.Handle("/metrics", getOnly(promhttp.Handler()))
	mux.HandleFunc("/ws", d.Peers.HandlePeerWS)

	return withCORS(d.CORSOrigins, mux)
}
