// Package publish uploads a built dist directory to S3-compatible storage.
//
// Content-hashed outputs (name-0123456789abcdef.ext) are immutable and get a
// long-lived Cache-Control; index.html, manifest.json and every other
// unhashed file get no-cache so a new deploy is picked up immediately.
//
// Example usage:
//
//	client, _ := publish.NewClient(cfg.Publish)
//	up := publish.New(client, publish.Options{Bucket: cfg.Publish.Bucket})
//	results, err := up.Upload(ctx, cfg.DistPath())
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
)

// NoCache is the Cache-Control for unhashed files.
const NoCache = "no-cache"

// ObjectPutter is the part of *s3.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures an Uploader.
type Options struct {
	// Bucket is the destination bucket. Required.
	Bucket string

	// Prefix is prepended to every key.
	Prefix string

	// CacheControl is sent for hashed outputs (default
	// config.DefaultCacheControl).
	CacheControl string

	// Concurrency bounds parallel uploads (default runtime.NumCPU()).
	Concurrency int

	// DryRun walks and classifies files without uploading.
	DryRun bool

	// Logger receives one line per object.
	Logger *slog.Logger
}

// Object describes one uploaded file.
type Object struct {
	Key          string
	Path         string
	Size         int64
	ContentType  string
	CacheControl string
}

// Uploader walks a dist directory and puts every file.
type Uploader struct {
	client  ObjectPutter
	options Options
}

// New creates an uploader.
func New(client ObjectPutter, options Options) *Uploader {
	if options.CacheControl == "" {
		options.CacheControl = config.DefaultCacheControl
	}
	if options.Concurrency <= 0 {
		options.Concurrency = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	options.Prefix = strings.Trim(options.Prefix, "/")
	return &Uploader{client: client, options: options}
}

// NewClient builds an S3 client from the publish configuration. Credentials
// are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN when a request is signed.
func NewClient(cfg config.PublishConfig) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("E125").
			WithDetail("publish.bucket is empty").
			WithSuggestion("Set publish.bucket in spindle.yaml or pass --bucket")
	}
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts), nil
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("E125").
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "spindle environment",
	}, nil
}

// Upload puts every regular file under dist. Objects are returned sorted by
// key. The first failure is returned after in-flight uploads finish.
func (u *Uploader) Upload(ctx context.Context, dist string) ([]Object, error) {
	if u.options.Bucket == "" {
		return nil, errors.New("E125").WithDetail("no bucket configured")
	}

	objects, err := u.plan(dist)
	if err != nil {
		return nil, err
	}

	jobs := make(chan Object, len(objects))
	for _, o := range objects {
		jobs <- o
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := 0; i < min(u.options.Concurrency, len(objects)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for o := range jobs {
				if err := u.put(ctx, o); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return objects, nil
}

// plan lists the objects for dist without uploading anything.
func (u *Uploader) plan(dist string) ([]Object, error) {
	info, err := os.Stat(dist)
	if err != nil || !info.IsDir() {
		e := errors.New("E303").WithDetail(dist + " is not a directory")
		if err != nil {
			e = e.Wrap(err)
		}
		return nil, e.WithSuggestion("Run spindle build first")
	}

	var objects []Object
	err = filepath.WalkDir(dist, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dist, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key := rel
		if u.options.Prefix != "" {
			key = u.options.Prefix + "/" + rel
		}
		cache := NoCache
		if IsHashed(rel) {
			cache = u.options.CacheControl
		}
		objects = append(objects, Object{
			Key:          key,
			Path:         p,
			Size:         info.Size(),
			ContentType:  ContentType(rel),
			CacheControl: cache,
		})
		return nil
	})
	if err != nil {
		return nil, errors.New("E303").WithDetail("walking " + dist).Wrap(err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (u *Uploader) put(ctx context.Context, o Object) error {
	log := u.options.Logger.With("key", o.Key, "size", o.Size, "cache_control", o.CacheControl)
	if u.options.DryRun {
		log.Info("would upload")
		return nil
	}

	data, err := os.ReadFile(o.Path)
	if err != nil {
		return errors.New("E303").WithDetail(o.Path).Wrap(err)
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.options.Bucket),
		Key:          aws.String(o.Key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(o.ContentType),
		CacheControl: aws.String(o.CacheControl),
	})
	if err != nil {
		return errors.New("E304").WithDetail("s3://" + u.options.Bucket + "/" + o.Key).Wrap(err)
	}
	log.Info("uploaded")
	return nil
}

var hashedName = regexp.MustCompile(`-[0-9a-f]{16}(\.[^/]+)?$`)

// IsHashed reports whether a dist-relative path is a content-hashed output.
func IsHashed(rel string) bool {
	return hashedName.MatchString(path.Base(rel))
}

// ContentType picks the MIME type by extension.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".wasm":
		return "application/wasm"
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
