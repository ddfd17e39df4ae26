package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fieldcert-labs/fieldcert-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketReports string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("FIELDCERT_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("FIELDCERT_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("FIELDCERT_MINIO_ACCESS_KEY", "fieldcert"),
		SecretKey:     env.String("FIELDCERT_MINIO_SECRET_KEY", "fieldcertminio"),
		Region:        env.String("FIELDCERT_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketReports: env.String("FIELDCERT_MINIO_BUCKET_REPORTS", "report-packets"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketReports) == "" {
		return errors.New("reports bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
