package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

type adminState struct {
	WorldID string             `json:"world_id"`
	Tick    uint64             `json:"tick"`
	Metrics world.WorldMetrics `json:"metrics"`
}

type adminVoxel struct {
	ID        string   `json:"id"`
	Found     bool     `json:"found"`
	Data      string   `json:"data"`
	Revision  uint64   `json:"revision"`
	Neighbors []string `json:"neighbors"`
}

func registerAdminHandlers(mux *http.ServeMux, w *world.World) {
	mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, adminState{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		})
	}))
	mux.HandleFunc("/admin/v1/voxels", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		views := w.Voxels()
		out := make([]adminVoxel, 0, len(views))
		for _, v := range views {
			out = append(out, toAdminVoxel(v.ID, v.State, v.Neighbors, true))
		}
		writeJSON(rw, http.StatusOK, out)
	}))
	mux.HandleFunc("/admin/v1/voxel", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		id, err := voxel.ParseID(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		st, ok := w.ReadVoxel(id)
		if !ok {
			writeJSON(rw, http.StatusNotFound, toAdminVoxel(id, voxel.State{}, nil, false))
			return
		}
		ns, _ := w.Neighbors(id)
		writeJSON(rw, http.StatusOK, toAdminVoxel(id, st, ns, true))
	}))
}

func toAdminVoxel(id voxel.ID, st voxel.State, ns []voxel.ID, found bool) adminVoxel {
	out := adminVoxel{ID: id.String(), Found: found, Data: st.Data, Revision: st.Revision, Neighbors: []string{}}
	for _, n := range ns {
		out.Neighbors = append(out.Neighbors, n.String())
	}
	return out
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// loopbackGuard accepts any method; the MCP transport needs POST and DELETE.
func loopbackGuard(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h.ServeHTTP(rw, r)
	})
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
