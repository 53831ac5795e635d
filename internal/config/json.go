package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sqweebloid/seedbank/internal/flagx"
	"github.com/sqweebloid/seedbank/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Interval
// fields use timex.Duration so JSON can write either "500ms" or integer
// nanoseconds. Zero values mean "keep the current setting".
type JsonConfig struct {
	LedgerPath string `json:"ledger_path"`
	BlobDir    string `json:"blob_dir"`
	IDHexLen   int    `json:"id_hex_len"`

	SinglePartThreshold int64          `json:"single_part_threshold"`
	MinPartSize         int64          `json:"min_part_size"`
	MaxPartSize         int64          `json:"max_part_size"`
	MaxParts            int            `json:"max_parts"`
	MaxAttempts         int            `json:"max_attempts"`
	InitialBackoff      timex.Duration `json:"initial_backoff"`
	PartConcurrency     int            `json:"part_concurrency"`
	GlobalConcurrency   int64          `json:"global_concurrency"`

	S3Region          string `json:"s3_region"`
	S3BaseEndpoint    string `json:"s3_base_endpoint"`
	S3Bucket          string `json:"s3_bucket"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	S3StorageClass    string `json:"s3_storage_class"`
	S3RestoreDays     int    `json:"s3_restore_days"`
}

// parseJson overlays cfg with values loaded from the JSON file named by
// the -c/-config flags. No file flag means no JSON is loaded.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.LedgerPath, jc.LedgerPath)
	setString(&cfg.BlobDir, jc.BlobDir)
	setInt(&cfg.IDHexLen, jc.IDHexLen)

	setInt64(&cfg.Transfer.SinglePartThreshold, jc.SinglePartThreshold)
	setInt64(&cfg.Transfer.PartLimits.MinPartSize, jc.MinPartSize)
	setInt64(&cfg.Transfer.PartLimits.MaxPartSize, jc.MaxPartSize)
	setInt(&cfg.Transfer.PartLimits.MaxParts, jc.MaxParts)
	setInt(&cfg.Transfer.MaxAttempts, jc.MaxAttempts)
	if jc.InitialBackoff.Duration != 0 {
		cfg.Transfer.InitialBackoff = time.Duration(jc.InitialBackoff.Duration)
	}
	setInt(&cfg.Transfer.PartConcurrency, jc.PartConcurrency)
	setInt64(&cfg.Transfer.GlobalConcurrency, jc.GlobalConcurrency)

	setString(&cfg.S3.Region, jc.S3Region)
	setString(&cfg.S3.BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3.Bucket, jc.S3Bucket)
	setString(&cfg.S3.AccessKeyID, jc.S3AccessKeyID)
	setString(&cfg.S3.SecretAccessKey, jc.S3SecretAccessKey)
	setString(&cfg.S3.StorageClass, jc.S3StorageClass)
	setInt(&cfg.S3.RestoreDays, jc.S3RestoreDays)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}
