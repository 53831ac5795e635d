package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	metaTreeHash   = "seedbank-treehash"
	metaDescriptor = "seedbank-descriptor"
)

// S3Config carries the settings needed to reach an S3-compatible
// cold-storage backend.
type S3Config struct {
	Region          string
	BaseEndpoint    string // empty for AWS proper; set for MinIO etc.
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	StorageClass    string // e.g. GLACIER, DEEP_ARCHIVE
	RestoreDays     int    // how long a staged retrieval stays readable
}

// S3Vault implements Vault over S3 object storage with a cold storage
// class. Retrieval jobs map onto object restore requests.
type S3Vault struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Vault builds the S3 client from static credentials and an
// optional custom endpoint.
func NewS3Vault(ctx context.Context, cfg S3Config) (*S3Vault, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.StorageClass == "" {
		cfg.StorageClass = string(types.StorageClassGlacier)
	}
	if cfg.RestoreDays <= 0 {
		cfg.RestoreDays = 3
	}
	return &S3Vault{client: client, cfg: cfg}, nil
}

func (v *S3Vault) metadata(treeHash, descriptor string) map[string]string {
	m := map[string]string{metaTreeHash: treeHash}
	if descriptor != "" {
		m[metaDescriptor] = descriptor
	}
	return m
}

func (v *S3Vault) Upload(ctx context.Context, in UploadInput) (string, string, error) {
	_, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.cfg.Bucket),
		Key:           aws.String(in.Key),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Length),
		StorageClass:  types.StorageClass(v.cfg.StorageClass),
		Metadata:      v.metadata(in.TreeHash, in.Descriptor),
	})
	if err != nil {
		return "", "", classify(err)
	}
	// S3 verifies integrity per request; it does not echo a tree hash.
	return in.Key, "", nil
}

func (v *S3Vault) InitiateUpload(ctx context.Context, in InitInput) (string, error) {
	out, err := v.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(v.cfg.Bucket),
		Key:          aws.String(in.Key),
		StorageClass: types.StorageClass(v.cfg.StorageClass),
		Metadata:     v.metadata("", in.Descriptor),
	})
	if err != nil {
		return "", classify(err)
	}
	return aws.ToString(out.UploadId), nil
}

func (v *S3Vault) UploadPart(ctx context.Context, in PartInput) error {
	_, err := v.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(v.cfg.Bucket),
		Key:           aws.String(in.Key),
		UploadId:      aws.String(in.Handle),
		PartNumber:    aws.Int32(int32(in.PartNumber)),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Length),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (v *S3Vault) CompleteUpload(ctx context.Context, in CompleteInput) (string, string, error) {
	// The remote's part list, not local state, decides completeness;
	// the ETags it returns survive process restarts.
	parts, err := v.listParts(ctx, in.Handle, in.Key)
	if err != nil {
		return "", "", err
	}

	_, err = v.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(v.cfg.Bucket),
		Key:      aws.String(in.Key),
		UploadId: aws.String(in.Handle),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return "", "", classify(err)
	}
	return in.Key, "", nil
}

func (v *S3Vault) listParts(ctx context.Context, handle, key string) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	var marker *string
	for {
		out, err := v.client.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(v.cfg.Bucket),
			Key:              aws.String(key),
			UploadId:         aws.String(handle),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, classify(err)
		}
		for _, p := range out.Parts {
			parts = append(parts, types.CompletedPart{
				ETag:       p.ETag,
				PartNumber: p.PartNumber,
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		marker = out.NextPartNumberMarker
	}
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})
	return parts, nil
}

func (v *S3Vault) AbortUpload(ctx context.Context, handle, key string) error {
	_, err := v.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(v.cfg.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(handle),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// InitiateRetrieval issues an object restore. S3 stages whole objects;
// a requested byte range is honored at download time, not here.
func (v *S3Vault) InitiateRetrieval(ctx context.Context, key string, rng *ByteRange) (string, error) {
	_, err := v.client.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket: aws.String(v.cfg.Bucket),
		Key:    aws.String(key),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(int32(v.cfg.RestoreDays)),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: types.TierStandard,
			},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	return "restore/" + key, nil
}

// DescribeJob reads the object's restore state. The Restore header is
// `ongoing-request="true"` while staging, `ongoing-request="false"` with
// an expiry date once readable, and absent after the window lapses.
func (v *S3Vault) DescribeJob(ctx context.Context, jobID, key string) (JobDescription, error) {
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return JobDescription{}, classify(err)
	}

	desc := JobDescription{ID: jobID}
	restore := aws.ToString(out.Restore)
	switch {
	case strings.Contains(restore, `ongoing-request="true"`):
		desc.Status = StatusInProgress
	case strings.Contains(restore, `ongoing-request="false"`):
		desc.Status = StatusSucceeded
		desc.Message = restore
	default:
		desc.Status = StatusExpired
		desc.Message = "no restore in progress"
	}
	return desc, nil
}

var _ Vault = (*S3Vault)(nil)

// ObjectKey is where an archive payload lives in the bucket. It is
// centralized so front ends and disaster-recovery tooling agree.
func ObjectKey(archiveID string) string {
	return "archives/" + archiveID
}
