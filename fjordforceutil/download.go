/*
Copyright © 2024 the FjordForce authors.
This file is part of FjordForce.

FjordForce is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

FjordForce is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with FjordForce.  If not, see <http://www.gnu.org/licenses/>.
*/

package fjordforceutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// retryBackOff returns the retry schedule for downloads.
var retryBackOff = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
}

// maybeDownload checks if path is an existing local file. If not, and
// it is a URL or blob storage location, it downloads the file to a
// temporary directory and returns the path to the downloaded copy.
// Failed downloads are retried. Other paths are returned unchanged.
func maybeDownload(ctx context.Context, path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(ctx, path)
	}
	if IsBlob(path) {
		return downloadBlob(ctx, path)
	}
	return path, nil
}

// tempDest returns a location in a new temporary directory for a
// download named after the last element of p.
func tempDest(p string) (string, error) {
	dir, err := ioutil.TempDir("", "fjordforce")
	if err != nil {
		return "", fmt.Errorf("fjordforceutil: failed creating temporary download directory: %v", err)
	}
	return filepath.Join(dir, path.Base(p)), nil
}

// retry runs op until it succeeds, logging each failure.
func retry(ctx context.Context, src string, op func() error) error {
	return backoff.RetryNotify(op, backoff.WithContext(retryBackOff(), ctx),
		func(err error, d time.Duration) {
			logrus.WithFields(logrus.Fields{"url": src, "wait": d}).
				Warnf("fjordforceutil: download failed, retrying: %v", err)
		})
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("fjordforceutil: parsing url '%s': %v", src, err)
	}
	dest, err := tempDest(u.Path)
	if err != nil {
		return "", err
	}
	err = retry(ctx, src, func() error {
		req, err := http.NewRequest("GET", src, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("fjordforceutil: downloading '%s': %s", src, resp.Status)
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return copyTo(dest, resp.Body)
	})
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{"url": src, "path": dest}).Info("fjordforceutil: downloaded archive")
	return dest, nil
}

// copyTo writes the contents of r to a new file at dest.
func copyTo(dest string, r io.Reader) error {
	w, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("fjordforceutil: failed creating file for download: %v", err))
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// splitBlob returns the bucket and key of a blob storage location.
// For the local filesystem the bucket is the directory holding the file.
func splitBlob(u *url.URL) (bucket, key string) {
	if u.Scheme == "file" {
		dir, file := path.Split(path.Join(u.Host, u.Path))
		return "file://" + strings.TrimSuffix(dir, "/"), file
	}
	return u.Scheme + "://" + u.Host, strings.TrimPrefix(u.Path, "/")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem,
// where name is a directory, "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("fjordforceutil.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(path.Join(u.Host, u.Path))
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("fjordforceutil.OpenBucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// downloadBlob downloads the specified file from blob storage.
func downloadBlob(ctx context.Context, src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("fjordforceutil: parsing url '%s': %v", src, err)
	}
	bucketName, key := splitBlob(u)
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("fjordforceutil: opening bucket for '%s': %v", src, err)
	}
	dest, err := tempDest(key)
	if err != nil {
		return "", err
	}
	err = retry(ctx, src, func() error {
		r, err := bucket.NewReader(ctx, key)
		if err != nil {
			return err
		}
		defer r.Close()
		return copyTo(dest, r)
	})
	if err != nil {
		return "", fmt.Errorf("fjordforceutil: downloading '%s': %v", src, err)
	}
	logrus.WithFields(logrus.Fields{"url": src, "path": dest}).Info("fjordforceutil: downloaded archive")
	return dest, nil
}
