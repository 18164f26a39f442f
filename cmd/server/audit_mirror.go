package main

import (
	"context"
	"log"
	"time"

	"roboblocks/internal/config"
	persistlog "roboblocks/internal/persistence/log"
	"roboblocks/internal/persistence/objstore"
)

// openAuditMirror returns nil when no mirror is configured.
func openAuditMirror(cfg config.Config, audit *persistlog.SubmissionLogger, logger *log.Logger) (*objstore.Mirror, error) {
	mc := cfg.AuditMirror
	if !mc.Enabled() {
		return nil, nil
	}
	store, err := objstore.Open(objstore.Config{
		Endpoint:        mc.Endpoint,
		Bucket:          mc.Bucket,
		Region:          mc.Region,
		AccessKeyID:     mc.AccessKeyID,
		SecretAccessKey: mc.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	m := objstore.NewMirror(store, objstore.MirrorConfig{
		Root:        cfg.AuditLogDir,
		Prefix:      mc.Prefix,
		QueueSize:   256,
		EnqueueWait: 50 * time.Millisecond,
		Logger:      logger,
	})
	w := audit.Writer()
	w.SetOnClose(m.Enqueue)

	// Files left behind by a previous run, except the hour still being written.
	current := w.PathForTime(time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := m.Backfill(ctx, func(p string) bool { return p == current })
	if err != nil {
		logger.Printf("audit mirror backfill: %v", err)
	} else if n > 0 {
		logger.Printf("audit mirror backfill queued=%d", n)
	}
	logger.Printf("audit mirror endpoint=%s bucket=%s prefix=%s", store.Endpoint(), mc.Bucket, mc.Prefix)
	return m, nil
}
