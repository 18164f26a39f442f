package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"roboblocks/internal/bridge"
	"roboblocks/internal/persistence/indexdb"
	"roboblocks/internal/persistence/objstore"
	"roboblocks/internal/transport/ws"
)

// MetricsSource appends Prometheus text for one component.
type MetricsSource func(w io.Writer)

func (a *API) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP roboblocks_http_requests_total Emission and handoff requests.\n")
	fmt.Fprintf(rw, "# TYPE roboblocks_http_requests_total counter\n")
	fmt.Fprintf(rw, "roboblocks_http_requests_total{route=%q} %d\n", "emit", a.emitTotal.Load())
	fmt.Fprintf(rw, "roboblocks_http_requests_total{route=%q} %d\n", "run", a.runTotal.Load())
	fmt.Fprintf(rw, "roboblocks_http_requests_total{route=%q} %d\n", "save", a.saveTotal.Load())

	fmt.Fprintf(rw, "# HELP roboblocks_http_bridge_failures_total Handoffs that failed at the bridge.\n")
	fmt.Fprintf(rw, "# TYPE roboblocks_http_bridge_failures_total counter\n")
	fmt.Fprintf(rw, "roboblocks_http_bridge_failures_total %d\n", a.bridgeFails.Load())

	fmt.Fprintf(rw, "# HELP roboblocks_catalog_blocks Robot block kinds served.\n")
	fmt.Fprintf(rw, "# TYPE roboblocks_catalog_blocks gauge\n")
	fmt.Fprintf(rw, "roboblocks_catalog_blocks %d\n", len(a.cfg.Catalog.Defs))

	fmt.Fprintf(rw, "# HELP roboblocks_bridge_available Whether a bridge can take a submission (0/1).\n")
	fmt.Fprintf(rw, "# TYPE roboblocks_bridge_available gauge\n")
	fmt.Fprintf(rw, "roboblocks_bridge_available %d\n", boolGauge(bridge.Available(a.cfg.Bridge)))

	for _, m := range a.cfg.Metrics {
		if m != nil {
			m(rw)
		}
	}
}

func EditorMetrics(s *ws.Server) MetricsSource {
	return func(w io.Writer) {
		st := s.Stats()
		fmt.Fprintf(w, "# HELP roboblocks_editor_sessions Connected editor sessions.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_editor_sessions gauge\n")
		fmt.Fprintf(w, "roboblocks_editor_sessions %d\n", st.ActiveSessions)

		fmt.Fprintf(w, "# HELP roboblocks_editor_sessions_total Editor sessions opened.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_editor_sessions_total counter\n")
		fmt.Fprintf(w, "roboblocks_editor_sessions_total %d\n", st.SessionsTotal)

		fmt.Fprintf(w, "# HELP roboblocks_editor_messages_total Editor messages received.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_editor_messages_total counter\n")
		fmt.Fprintf(w, "roboblocks_editor_messages_total %d\n", st.MessagesTotal)

		fmt.Fprintf(w, "# HELP roboblocks_editor_errors_total ERROR replies sent to editors.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_editor_errors_total counter\n")
		fmt.Fprintf(w, "roboblocks_editor_errors_total %d\n", st.ErrorsTotal)
	}
}

func WSBridgeMetrics(b *bridge.WSBridge) MetricsSource {
	return func(w io.Writer) {
		st := b.Status()
		fmt.Fprintf(w, "# HELP roboblocks_ws_bridge_connected Robot backend websocket connected (0/1).\n")
		fmt.Fprintf(w, "# TYPE roboblocks_ws_bridge_connected gauge\n")
		fmt.Fprintf(w, "roboblocks_ws_bridge_connected{url=%q} %d\n", st.URL, boolGauge(st.Connected))

		fmt.Fprintf(w, "# HELP roboblocks_ws_bridge_submissions_total Programs sent over the websocket bridge.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_ws_bridge_submissions_total counter\n")
		fmt.Fprintf(w, "roboblocks_ws_bridge_submissions_total{result=%q} %d\n", "ok", st.Sent)
		fmt.Fprintf(w, "roboblocks_ws_bridge_submissions_total{result=%q} %d\n", "failed", st.Failed)
	}
}

func SQLiteIndexMetrics(s *indexdb.SQLiteIndex) MetricsSource {
	return func(w io.Writer) {
		st := s.Stats()
		fmt.Fprintf(w, "# HELP roboblocks_index_queue_depth SQLite index queue depth.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_index_queue_depth gauge\n")
		fmt.Fprintf(w, "roboblocks_index_queue_depth %d\n", st.QueueDepth)

		fmt.Fprintf(w, "# HELP roboblocks_index_queue_capacity SQLite index queue capacity.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_index_queue_capacity gauge\n")
		fmt.Fprintf(w, "roboblocks_index_queue_capacity %d\n", st.QueueCapacity)

		fmt.Fprintf(w, "# HELP roboblocks_index_submissions_total SQLite index submission rows by outcome.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_index_submissions_total counter\n")
		fmt.Fprintf(w, "roboblocks_index_submissions_total{result=%q} %d\n", "written", st.WrittenTotal)
		fmt.Fprintf(w, "roboblocks_index_submissions_total{result=%q} %d\n", "failed", st.FailTotal)
		fmt.Fprintf(w, "roboblocks_index_submissions_total{result=%q} %d\n", "dropped", st.DropTotal)
	}
}

func RemoteIndexMetrics(d *indexdb.RemoteIndex) MetricsSource {
	return func(w io.Writer) {
		st := d.Stats()
		fmt.Fprintf(w, "# HELP roboblocks_remote_index_queue_depth Remote index queue depth.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_remote_index_queue_depth gauge\n")
		fmt.Fprintf(w, "roboblocks_remote_index_queue_depth %d\n", st.QueueDepth)

		fmt.Fprintf(w, "# HELP roboblocks_remote_index_flush_fail_total Remote index batches that failed to flush.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_remote_index_flush_fail_total counter\n")
		fmt.Fprintf(w, "roboblocks_remote_index_flush_fail_total %d\n", st.FlushFailTotal)

		fmt.Fprintf(w, "# HELP roboblocks_remote_index_events_total Remote index events by outcome.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_remote_index_events_total counter\n")
		fmt.Fprintf(w, "roboblocks_remote_index_events_total{result=%q} %d\n", "sent", st.SentTotal)
		fmt.Fprintf(w, "roboblocks_remote_index_events_total{result=%q} %d\n", "dropped", st.QueueDroppedTotal)
	}
}

func boolGauge(v bool) int {
	if v {
		return 1
	}
	return 0
}

func AuditMirrorMetrics(m *objstore.Mirror) MetricsSource {
	return func(w io.Writer) {
		s := m.Stats()
		fmt.Fprintf(w, "# HELP roboblocks_audit_mirror_queue_depth Current audit mirror queue depth.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_audit_mirror_queue_depth gauge\n")
		fmt.Fprintf(w, "roboblocks_audit_mirror_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(w, "# HELP roboblocks_audit_mirror_queue_capacity Audit mirror queue capacity.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_audit_mirror_queue_capacity gauge\n")
		fmt.Fprintf(w, "roboblocks_audit_mirror_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(w, "# HELP roboblocks_audit_mirror_files_total Audit files by mirror outcome.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_audit_mirror_files_total counter\n")
		fmt.Fprintf(w, "roboblocks_audit_mirror_files_total{result=%q} %d\n", "uploaded", s.UploadedTotal)
		fmt.Fprintf(w, "roboblocks_audit_mirror_files_total{result=%q} %d\n", "failed", s.FailedTotal)
		fmt.Fprintf(w, "roboblocks_audit_mirror_files_total{result=%q} %d\n", "dropped", s.DroppedTotal)
		fmt.Fprintf(w, "roboblocks_audit_mirror_files_total{result=%q} %d\n", "already_present", s.SkippedTotal)

		fmt.Fprintf(w, "# HELP roboblocks_audit_mirror_last_upload_unix Unix time of the last successful upload.\n")
		fmt.Fprintf(w, "# TYPE roboblocks_audit_mirror_last_upload_unix gauge\n")
		fmt.Fprintf(w, "roboblocks_audit_mirror_last_upload_unix %d\n", s.LastUploadUnix)
	}
}
