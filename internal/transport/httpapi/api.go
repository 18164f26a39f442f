// Package httpapi is the stateless HTTP surface: catalog and toolbox
// downloads, one-shot emission, and Run/Save handoffs.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"roboblocks/internal/blocks"
	"roboblocks/internal/bridge"
	"roboblocks/internal/emit"
	"roboblocks/internal/program"
	"roboblocks/internal/protocol"
	"roboblocks/internal/session"
	"roboblocks/internal/toolbox"
)

const maxWorkspaceBytes = 4 << 20

// SubmissionLister serves the recent-submissions listing.
type SubmissionLister interface {
	RecentSubmissions(ctx context.Context, limit int) ([]bridge.Submission, error)
}

type Config struct {
	Catalog     *blocks.Catalog
	Toolbox     *toolbox.Toolbox
	Emitter     *emit.Emitter
	Bridge      bridge.Bridge
	Submissions SubmissionLister
	Metrics     []MetricsSource
}

type API struct {
	cfg Config
	log *log.Logger

	emitTotal   atomic.Uint64
	runTotal    atomic.Uint64
	saveTotal   atomic.Uint64
	bridgeFails atomic.Uint64
}

func New(cfg Config, logger *log.Logger) *API {
	if cfg.Catalog == nil {
		cfg.Catalog = blocks.Builtin()
	}
	if cfg.Toolbox == nil {
		cfg.Toolbox = toolbox.Default()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = emit.New(cfg.Catalog)
	}
	return &API{cfg: cfg, log: logger}
}

// Register mounts every endpoint on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/blocks", a.handleBlocks)
	mux.HandleFunc("/v1/toolbox", a.handleToolbox)
	mux.HandleFunc("/v1/emit", a.handleEmit)
	mux.HandleFunc("/v1/run", a.handleSubmit("run"))
	mux.HandleFunc("/v1/save", a.handleSubmit("save"))
	mux.HandleFunc("/v1/submissions", a.handleSubmissions)
}

func (a *API) handleBlocks(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	b, err := a.cfg.Catalog.MarshalEditorJSON()
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if a.cfg.Catalog.Digest != "" {
		rw.Header().Set("ETag", strconv.Quote(a.cfg.Catalog.Digest))
	}
	_, _ = rw.Write(b)
}

func (a *API) handleToolbox(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.cfg.Toolbox.Digest != "" {
		rw.Header().Set("ETag", strconv.Quote(a.cfg.Toolbox.Digest))
	}
	if r.URL.Query().Get("format") == "xml" {
		b, err := a.cfg.Toolbox.XML()
		if err != nil {
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
			return
		}
		rw.Header().Set("Content-Type", "application/xml")
		_, _ = rw.Write(b)
		return
	}
	writeJSON(rw, http.StatusOK, a.cfg.Toolbox)
}

type emitResponse struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

func (a *API) handleEmit(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a.emitTotal.Add(1)
	doc, ok := a.readWorkspace(rw, r)
	if !ok {
		return
	}
	code, err := a.cfg.Emitter.Program(doc)
	if err != nil {
		a.writeEmitError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, emitResponse{Code: code, Display: session.Display(code)})
}

func (a *API) handleSubmit(action string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if action == "save" {
			a.saveTotal.Add(1)
		} else {
			a.runTotal.Add(1)
		}
		doc, ok := a.readWorkspace(rw, r)
		if !ok {
			return
		}

		id := uuid.NewString()
		sess := session.New(id, a.cfg.Emitter, a.cfg.Bridge, a.log)
		if _, _, err := sess.Changed(doc); err != nil {
			a.writeEmitError(rw, err)
			return
		}
		ctx := bridge.WithSubmissionID(r.Context(), id)
		var (
			out session.Outcome
			err error
		)
		if action == "save" {
			out, err = sess.SaveCode(ctx)
		} else {
			out, err = sess.Run(ctx)
		}
		rw.Header().Set("X-Submission-ID", id)
		if err != nil {
			a.writeEmitError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

func (a *API) handleSubmissions(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.cfg.Submissions == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrUnavailable, "submission index disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	subs, err := a.cfg.Submissions.RecentSubmissions(r.Context(), limit)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	if subs == nil {
		subs = []bridge.Submission{}
	}
	writeJSON(rw, http.StatusOK, struct {
		Submissions []bridge.Submission `json:"submissions"`
	}{subs})
}

func (a *API) readWorkspace(rw http.ResponseWriter, r *http.Request) (*program.Document, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWorkspaceBytes+1))
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, err.Error())
		return nil, false
	}
	if len(raw) > maxWorkspaceBytes {
		writeError(rw, http.StatusRequestEntityTooLarge, protocol.ErrBadWorkspace, "workspace too large")
		return nil, false
	}
	doc, err := program.Decode(raw)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadWorkspace, err.Error())
		return nil, false
	}
	return doc, true
}

func (a *API) writeEmitError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrBridge):
		a.bridgeFails.Add(1)
		writeError(rw, http.StatusBadGateway, protocol.ErrBridge, err.Error())
	case errors.Is(err, emit.ErrUnknownKind), errors.Is(err, emit.ErrNotStatement):
		writeError(rw, http.StatusUnprocessableEntity, protocol.ErrUnknownBlock, err.Error())
	default:
		if a.log != nil {
			a.log.Printf("emit: %v", err)
		}
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(rw http.ResponseWriter, status int, code, message string) {
	writeJSON(rw, status, errorResponse{Code: code, Message: message})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
