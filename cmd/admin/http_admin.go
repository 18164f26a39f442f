package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// serverState is the subset of /admin/v1/state the summary prints.
type serverState struct {
	ProtocolVersion string `json:"protocol_version"`
	BridgeMode      string `json:"bridge_mode"`
	BridgeAvailable bool   `json:"bridge_available"`
	Catalogs        struct {
		BlocksDigest  string `json:"blocks_digest"`
		BlockCount    int    `json:"block_count"`
		ToolboxDigest string `json:"toolbox_digest"`
	} `json:"catalogs"`
	Editors struct {
		ActiveSessions int64  `json:"active_sessions"`
		SessionsTotal  uint64 `json:"sessions_total"`
		MessagesTotal  uint64 `json:"messages_total"`
		ErrorsTotal    uint64 `json:"errors_total"`
	} `json:"editors"`
	Index *struct {
		QueueDepth    int    `json:"queue_depth"`
		QueueCapacity int    `json:"queue_capacity"`
		DropTotal     uint64 `json:"drop_total"`
		WrittenTotal  uint64 `json:"written_total"`
		FailTotal     uint64 `json:"fail_total"`
	} `json:"index"`
	RemoteIndex *struct {
		QueueDepth        int    `json:"queue_depth"`
		FlushFailTotal    uint64 `json:"flush_fail_total"`
		QueueDroppedTotal uint64 `json:"queue_dropped_total"`
		SentTotal         uint64 `json:"sent_total"`
	} `json:"remote_index"`
	AuditMirror *struct {
		QueueDepth    int    `json:"queue_depth"`
		UploadedTotal uint64 `json:"uploaded_total"`
		FailedTotal   uint64 `json:"failed_total"`
		DroppedTotal  uint64 `json:"dropped_total"`
	} `json:"audit_mirror"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw JSON response")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	_ = fs.Parse(args)

	body, err := fetchState(&http.Client{Timeout: *timeout}, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(body))
		return
	}
	var st serverState
	if err := json.Unmarshal(body, &st); err != nil {
		fmt.Fprintln(os.Stderr, "decode state:", err)
		os.Exit(1)
	}
	writeState(os.Stdout, st)
}

func fetchState(cl *http.Client, baseURL string) ([]byte, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	resp, err := cl.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func writeState(w io.Writer, st serverState) {
	avail := "unavailable"
	if st.BridgeAvailable {
		avail = "available"
	}
	fmt.Fprintf(w, "protocol  %s\n", st.ProtocolVersion)
	fmt.Fprintf(w, "bridge    %s (%s)\n", st.BridgeMode, avail)
	fmt.Fprintf(w, "catalogs  blocks=%d digest=%s toolbox=%s\n",
		st.Catalogs.BlockCount, short(st.Catalogs.BlocksDigest), short(st.Catalogs.ToolboxDigest))
	fmt.Fprintf(w, "editors   active=%d opened=%d messages=%d errors=%d\n",
		st.Editors.ActiveSessions, st.Editors.SessionsTotal, st.Editors.MessagesTotal, st.Editors.ErrorsTotal)
	if ix := st.Index; ix != nil {
		fmt.Fprintf(w, "index     queue=%d/%d written=%d dropped=%d failed=%d\n",
			ix.QueueDepth, ix.QueueCapacity, ix.WrittenTotal, ix.DropTotal, ix.FailTotal)
	} else {
		fmt.Fprintln(w, "index     disabled")
	}
	if r := st.RemoteIndex; r != nil {
		fmt.Fprintf(w, "remote    queue=%d sent=%d dropped=%d flush_failures=%d\n",
			r.QueueDepth, r.SentTotal, r.QueueDroppedTotal, r.FlushFailTotal)
	}
	if m := st.AuditMirror; m != nil {
		fmt.Fprintf(w, "mirror    queue=%d uploaded=%d failed=%d dropped=%d\n",
			m.QueueDepth, m.UploadedTotal, m.FailedTotal, m.DroppedTotal)
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
