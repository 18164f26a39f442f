package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"roboblocks/internal/blocks"
	"roboblocks/internal/config"
	"roboblocks/internal/emit"
	"roboblocks/internal/persistence/indexdb"
	"roboblocks/internal/protocol"
	"roboblocks/internal/toolbox"
)

// servedCatalogs is the immutable definition set shared by every session.
type servedCatalogs struct {
	catalog *blocks.Catalog
	toolbox *toolbox.Toolbox
	emitter *emit.Emitter
}

func loadCatalogs(cfg config.Config) (servedCatalogs, error) {
	var out servedCatalogs

	out.catalog = blocks.Builtin()
	if p := cfg.BlocksPath; p != "" {
		c, err := blocks.Load(os.DirFS(filepath.Dir(p)), filepath.Base(p))
		if err != nil {
			return out, err
		}
		out.catalog = c
	}
	out.emitter = emit.New(out.catalog)

	out.toolbox = toolbox.Default()
	if p := cfg.ToolboxPath; p != "" {
		t, err := toolbox.Load(os.DirFS(filepath.Dir(p)), filepath.Base(p))
		if err != nil {
			return out, err
		}
		out.toolbox = t
	}
	if err := out.toolbox.Validate(out.emitter.Supports); err != nil {
		return out, fmt.Errorf("toolbox: %w", err)
	}
	return out, nil
}

func (c servedCatalogs) digests() protocol.CatalogDigests {
	return protocol.CatalogDigests{
		BlocksDigest:  c.catalog.Digest,
		BlockCount:    len(c.catalog.Defs),
		ToolboxDigest: c.toolbox.Digest,
	}
}

func (c servedCatalogs) entries() ([]indexdb.CatalogEntry, error) {
	blocksJSON, err := c.catalog.MarshalEditorJSON()
	if err != nil {
		return nil, err
	}
	toolboxJSON, err := json.Marshal(c.toolbox)
	if err != nil {
		return nil, err
	}
	return []indexdb.CatalogEntry{
		{Name: "blocks", Digest: c.catalog.Digest, JSON: blocksJSON},
		{Name: "toolbox", Digest: c.toolbox.Digest, JSON: toolboxJSON},
	}, nil
}
