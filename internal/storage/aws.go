package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"icemeta/internal/domain"
)

// s3Integration vends STS-assumed credentials restricted by a session policy
// to the locations a caller was granted.
type s3Integration struct {
	cfg      *domain.StorageConfigurationInfo
	duration time.Duration
}

func newS3Integration(cfg *domain.StorageConfigurationInfo, duration time.Duration) *s3Integration {
	return &s3Integration{cfg: cfg, duration: duration}
}

func (i *s3Integration) Config() *domain.StorageConfigurationInfo { return i.cfg }

func (i *s3Integration) SubscopeCredentials(ctx context.Context, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) (map[domain.CredentialProperty]string, error) {
	if err := checkScope(i.cfg, allowedReadLocations, allowedWriteLocations); err != nil {
		return nil, err
	}
	policy, err := sessionPolicy(allowListOperation, allowedReadLocations, allowedWriteLocations)
	if err != nil {
		return nil, err
	}
	out, err := i.assumeRole(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("assume role %s: %w", i.cfg.RoleARN, err)
	}
	creds := map[domain.CredentialProperty]string{
		domain.CredentialAWSKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		domain.CredentialAWSSecretKey: aws.ToString(out.Credentials.SecretAccessKey),
		domain.CredentialAWSToken:     aws.ToString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds[domain.CredentialExpirationTime] = timeMillis(*out.Credentials.Expiration)
	} else {
		creds[domain.CredentialExpirationTime] = expirationMillis(i.duration)
	}
	if i.cfg.S3Endpoint != "" {
		creds[domain.CredentialAWSEndpoint] = i.cfg.S3Endpoint
	}
	return creds, nil
}

// ValidateAccess assumes the role scoped to the full allowed set and probes
// each requested location with the vended credentials, so the answer
// reflects what a caller holding them could actually do.
func (i *s3Integration) ValidateAccess(ctx context.Context, actions []domain.StorageAction, locations []string) ([]domain.LocationAccessResult, error) {
	results := validateByScope(i.cfg, locations)
	client, err := i.probeClient(ctx)
	if err != nil {
		return nil, err
	}
	for idx := range results {
		if !results[idx].Allowed {
			continue
		}
		bucket, prefix, err := parseS3URI(results[idx].Location)
		if err != nil {
			results[idx].Allowed = false
			results[idx].Message = err.Error()
			continue
		}
		if _, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		}); err != nil {
			results[idx].Allowed = false
			results[idx].Message = err.Error()
		}
	}
	return results, nil
}

func (i *s3Integration) assumeRole(ctx context.Context, policy string) (*sts.AssumeRoleOutput, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(i.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sts.NewFromConfig(awsCfg)
	return client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(i.cfg.RoleARN),
		RoleSessionName: aws.String("icemeta-subscoped"),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(int32(i.duration.Seconds())),
	})
}

func (i *s3Integration) probeClient(ctx context.Context) (*s3.Client, error) {
	policy, err := sessionPolicy(true, i.cfg.AllowedLocations, i.cfg.AllowedLocations)
	if err != nil {
		return nil, err
	}
	out, err := i.assumeRole(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("assume role %s: %w", i.cfg.RoleARN, err)
	}
	provider := credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	)
	return s3.New(s3.Options{
		Region:       i.cfg.Region,
		Credentials:  provider,
		BaseEndpoint: endpointOrNil(i.cfg.S3Endpoint),
	}), nil
}

func endpointOrNil(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return &endpoint
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string         `json:"Effect"`
	Action    []string       `json:"Action"`
	Resource  []string       `json:"Resource"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// sessionPolicy builds the IAM session policy that narrows the assumed role
// to the requested locations.
func sessionPolicy(allowListOperation bool, readLocations, writeLocations []string) (string, error) {
	doc := policyDocument{Version: "2012-10-17"}

	readResources, readBuckets, readPrefixes, err := s3Resources(readLocations)
	if err != nil {
		return "", err
	}
	if len(readResources) > 0 {
		doc.Statement = append(doc.Statement, policyStatement{
			Effect:   "Allow",
			Action:   []string{"s3:GetObject", "s3:GetObjectVersion"},
			Resource: readResources,
		})
	}
	writeResources, _, _, err := s3Resources(writeLocations)
	if err != nil {
		return "", err
	}
	if len(writeResources) > 0 {
		doc.Statement = append(doc.Statement, policyStatement{
			Effect:   "Allow",
			Action:   []string{"s3:PutObject", "s3:DeleteObject"},
			Resource: writeResources,
		})
	}
	if allowListOperation && len(readBuckets) > 0 {
		doc.Statement = append(doc.Statement, policyStatement{
			Effect:   "Allow",
			Action:   []string{"s3:ListBucket"},
			Resource: readBuckets,
			Condition: map[string]any{
				"StringLike": map[string]any{"s3:prefix": readPrefixes},
			},
		})
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize session policy: %w", err)
	}
	return string(b), nil
}

// s3Resources expands locations into object ARNs plus the bucket ARNs and
// key prefixes needed for list statements.
func s3Resources(locations []string) (objects, buckets, prefixes []string, err error) {
	seenBucket := map[string]bool{}
	for _, loc := range locations {
		bucket, prefix, err := parseS3URI(loc)
		if err != nil {
			return nil, nil, nil, err
		}
		objects = append(objects, fmt.Sprintf("arn:aws:s3:::%s/%s*", bucket, prefix))
		if !seenBucket[bucket] {
			seenBucket[bucket] = true
			buckets = append(buckets, fmt.Sprintf("arn:aws:s3:::%s", bucket))
		}
		prefixes = append(prefixes, prefix+"*")
	}
	return objects, buckets, prefixes, nil
}

func parseS3URI(loc string) (bucket, prefix string, err error) {
	trimmed, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return "", "", domain.ErrValidation("location %q is not an s3 uri", loc)
	}
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", domain.ErrValidation("location %q has no bucket", loc)
	}
	return bucket, prefix, nil
}
