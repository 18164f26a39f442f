package main

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"roboblocks/internal/bridge"
	"roboblocks/internal/config"
	"roboblocks/internal/persistence/indexdb"
	"roboblocks/internal/persistence/objstore"
	"roboblocks/internal/protocol"
	"roboblocks/internal/transport/ws"
)

type adminState struct {
	ProtocolVersion string                  `json:"protocol_version"`
	BridgeMode      string                  `json:"bridge_mode"`
	BridgeAvailable bool                    `json:"bridge_available"`
	Catalogs        protocol.CatalogDigests `json:"catalogs"`
	Editors         ws.Stats                `json:"editors"`
	Index           *indexdb.Stats          `json:"index,omitempty"`
	RemoteIndex     *indexdb.RemoteStats    `json:"remote_index,omitempty"`
	AuditMirror     *objstore.MirrorStats   `json:"audit_mirror,omitempty"`
}

// adminStateHandler is loopback-only.
func adminStateHandler(cfg config.Config, cats servedCatalogs, b bridge.Bridge, editors *ws.Server, idx *runtimeIndex, mirror *objstore.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		st := adminState{
			ProtocolVersion: protocol.Version,
			BridgeMode:      cfg.Bridge.Mode,
			BridgeAvailable: bridge.Available(b),
			Catalogs:        cats.digests(),
			Editors:         editors.Stats(),
		}
		if idx.sqlite != nil {
			s := idx.sqlite.Stats()
			st.Index = &s
		}
		if idx.remote != nil {
			s := idx.remote.Stats()
			st.RemoteIndex = &s
		}
		if mirror != nil {
			s := mirror.Stats()
			st.AuditMirror = &s
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(st)
	}
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
