package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/remote"
	"github.com/gsoxley/OpenMDAO/internal/storageprovider"
	"github.com/gsoxley/OpenMDAO/internal/storageutil"
)

// sourcesFromArgs turns trace arguments into merge sources. Plain
// paths read local files, file/gs/s3 URLs read lz4 compressed
// collector objects and http(s) URLs fetch from a collector daemon.
// The full argument stays the source name so failures and rank
// decoration both see it.
func sourcesFromArgs(args []string) []rawtrace.Source {
	sources := make([]rawtrace.Source, 0, len(args))
	for _, arg := range args {
		sources = append(sources, sourceFromArg(arg))
	}
	return sources
}

func sourceFromArg(arg string) rawtrace.Source {
	switch {
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return rawtrace.Opener(arg, func(ctx context.Context) (io.ReadCloser, error) {
			log.Debug().Str("trace", arg).Msg("fetching trace from the collector")
			client, err := remote.NewClient(arg)
			if err != nil {
				return nil, err
			}
			return client.Fetch(ctx, arg)
		})
	case strings.HasPrefix(arg, "file://"), strings.HasPrefix(arg, "gs://"), strings.HasPrefix(arg, "s3://"):
		return rawtrace.Opener(arg, func(ctx context.Context) (io.ReadCloser, error) {
			log.Debug().Str("trace", arg).Msg("reading trace from the bucket")
			bucketURL, objectName, err := splitObjectURL(arg)
			if err != nil {
				return nil, err
			}
			bucket, err := storageprovider.OpenBucket(ctx, bucketURL)
			if err != nil {
				return nil, err
			}
			defer bucket.Close()
			data, err := storageutil.DecompressedRead(ctx, bucket, objectName)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		})
	default:
		return rawtrace.File(arg)
	}
}

// splitObjectURL separates a trace object URL into its bucket URL and
// the object name inside the bucket. Cloud buckets are named by the
// URL host; file buckets are directories, so there the object is the
// last path segment.
func splitObjectURL(arg string) (string, string, error) {
	u, err := url.Parse(arg)
	if err != nil {
		return "", "", fmt.Errorf("parsing trace URL %s: %w", arg, err)
	}
	bucket := *u
	if u.Scheme == "file" {
		i := strings.LastIndex(u.Path, "/")
		if i <= 0 || i == len(u.Path)-1 {
			return "", "", fmt.Errorf("trace URL %s does not name an object", arg)
		}
		bucket.Path = u.Path[:i]
		return bucket.String(), u.Path[i+1:], nil
	}
	objectName := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || objectName == "" {
		return "", "", fmt.Errorf("trace URL %s does not name an object", arg)
	}
	bucket.Path = ""
	return bucket.String(), objectName, nil
}
