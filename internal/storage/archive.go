// Package storage archives generated greetings to S3 so campaign content
// stays auditable after delivery.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/atlasbank/greeting-engine/internal/domain"
)

// s3API is the S3 slice the archive uses; faked in tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the bucket and credentials.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string // empty selects the default credential chain
	SecretKey string
	Endpoint  string // optional, for S3-compatible stores
}

// Archive writes one object per greeting under
// {prefix}greetings/{date}/{runID}/{personID}.json plus the image alongside.
type Archive struct {
	client s3API
	bucket string
	prefix string
}

// New creates an S3-backed archive.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "ru-central1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Printf("[Archive] bucket=%s prefix=%s region=%s", cfg.Bucket, cfg.Prefix, region)
	return &Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// archivedGreeting is the JSON payload stored per pair.
type archivedGreeting struct {
	PersonID int64                `json:"person_id"`
	ChatID   string               `json:"chat_id"`
	Event    domain.Event         `json:"event"`
	Text     string               `json:"text"`
	Score    *domain.QualityScore `json:"score,omitempty"`
	HasImage bool                 `json:"has_image"`
}

// Archive stores the greeting text (and image, when present) for one pair.
func (a *Archive) Archive(ctx context.Context, date, runID string, g domain.Greeting) error {
	base := fmt.Sprintf("%sgreetings/%s/%s/%d", a.prefix, date, runID, g.PersonID)

	payload, err := json.MarshalIndent(archivedGreeting{
		PersonID: g.PersonID,
		ChatID:   g.ChatID,
		Event:    g.Event,
		Text:     g.Text,
		Score:    g.Score,
		HasImage: len(g.Image) > 0,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal greeting: %w", err)
	}

	if err := a.put(ctx, base+".json", payload, "application/json"); err != nil {
		return err
	}
	if len(g.Image) > 0 {
		if err := a.put(ctx, base+".jpg", g.Image, "image/jpeg"); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}
