package main

import (
	"log"
	"os"
	"strings"
	"time"

	"roboblocks/internal/bridge"
	"roboblocks/internal/config"
	"roboblocks/internal/persistence/indexdb"
	"roboblocks/internal/transport/httpapi"
)

// runtimeIndex holds the read-model backends that are enabled. Either may
// be nil.
type runtimeIndex struct {
	sqlite *indexdb.SQLiteIndex
	remote *indexdb.RemoteIndex
}

func openRuntimeIndex(cfg config.IndexConfig, disableDB bool, logger *log.Logger) (*runtimeIndex, error) {
	idx := &runtimeIndex{}
	if disableDB {
		return idx, nil
	}
	if cfg.SQLitePath != "" {
		s, err := indexdb.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		idx.sqlite = s
	}
	if cfg.RemoteEndpoint != "" {
		token := cfg.RemoteToken
		if token == "" {
			token = strings.TrimSpace(os.Getenv("ROBOBLOCKS_INDEX_TOKEN"))
		}
		r, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      cfg.RemoteEndpoint,
			Token:         token,
			Source:        "roboblocks-server",
			BatchSize:     128,
			FlushInterval: 500 * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		idx.remote = r
	}
	return idx, nil
}

func (i *runtimeIndex) recorders() []bridge.Recorder {
	var out []bridge.Recorder
	if i.sqlite != nil {
		out = append(out, i.sqlite)
	}
	if i.remote != nil {
		out = append(out, i.remote)
	}
	return out
}

func (i *runtimeIndex) upsertCatalogs(entries []indexdb.CatalogEntry) error {
	if i.sqlite != nil {
		if err := i.sqlite.UpsertCatalogs(entries); err != nil {
			return err
		}
	}
	if i.remote != nil {
		return i.remote.UpsertCatalogs(entries)
	}
	return nil
}

func (i *runtimeIndex) lister() httpapi.SubmissionLister {
	if i.sqlite == nil {
		return nil
	}
	return i.sqlite
}

func (i *runtimeIndex) metrics() []httpapi.MetricsSource {
	var out []httpapi.MetricsSource
	if i.sqlite != nil {
		out = append(out, httpapi.SQLiteIndexMetrics(i.sqlite))
	}
	if i.remote != nil {
		out = append(out, httpapi.RemoteIndexMetrics(i.remote))
	}
	return out
}

func (i *runtimeIndex) Close() error {
	var err error
	if i.remote != nil {
		err = i.remote.Close()
	}
	if i.sqlite != nil {
		if e := i.sqlite.Close(); e != nil {
			err = e
		}
	}
	return err
}
