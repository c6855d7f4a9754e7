// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package mram defines the contract for loading prebuilt MRAM/index image
// blobs -- the index and accelerator collaborators load their scratch
// contents from images this package's loader fetches -- and an S3-backed
// implementation, grounded on encoding/bamprovider/provider_test.go's
// aws-sdk-go session/s3 bootstrapping. Building an index or MRAM image is
// out of scope; this package only loads one that was built elsewhere.
package mram

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ImageLoader fetches a named MRAM/index image blob in full.
type ImageLoader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// S3ImageLoader loads image blobs from a fixed S3 bucket using
// s3manager's concurrent range-get downloader, the way a multi-gigabyte
// index image is fetched in practice rather than with a single GetObject
// call.
type S3ImageLoader struct {
	bucket     string
	downloader *s3manager.Downloader
}

// NewS3ImageLoader returns a loader for objects in bucket, using sess (a
// *session.Session built the same way provider_test.go's
// s3file.NewDefaultProvider bootstraps one).
func NewS3ImageLoader(sess *session.Session, bucket string) *S3ImageLoader {
	return &S3ImageLoader{
		bucket:     bucket,
		downloader: s3manager.NewDownloader(sess),
	}
}

// NewDefaultSession builds a session.Session from the environment/instance
// role, the zero-options form bamprovider's s3file.NewDefaultProvider uses.
func NewDefaultSession() (*session.Session, error) {
	return session.NewSession(&aws.Config{})
}

// Load downloads the object at key into memory and returns its full
// contents.
func (l *S3ImageLoader) Load(ctx context.Context, key string) ([]byte, error) {
	buf := aws.NewWriteAtBuffer(nil)
	n, err := l.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("mram: download s3://%s/%s: %w", l.bucket, key, err)
	}
	data := buf.Bytes()
	if int64(len(data)) != n {
		return nil, fmt.Errorf("mram: short read for s3://%s/%s: got %d bytes, downloader reported %d", l.bucket, key, len(data), n)
	}
	return data, nil
}
