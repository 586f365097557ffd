package artifacts

import (
	"fmt"

	"github.com/kubev2v/build-orchestrator/internal/config"
)

// NewStore returns the Store selected by ARTIFACT_STORE.
func NewStore(cfg *config.ArtifactsConfig) (Store, error) {
	switch cfg.Store {
	case "fs":
		return NewFSStore(cfg.Root)
	case "s3":
		return NewMinioStore(
			WithEndpoint(cfg.S3.Endpoint),
			WithBucket(cfg.S3.Bucket),
			WithCredentials(cfg.S3.AccessKey, cfg.S3.SecretKey),
			WithSSL(cfg.S3.UseSSL),
		)
	default:
		return nil, fmt.Errorf("unknown artifact store %q", cfg.Store)
	}
}
