package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

var generatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testReport() *analytics.Report {
	events := []analytics.AttemptEvent{
		{SessionID: "s1", PuzzleID: "puzzle1", AttemptNumber: 1, DurationSeconds: 30},
	}
	return analytics.BuildReport(events, analytics.MustPuzzleOrder("puzzle1", "puzzle2"), generatedAt)
}

type fakeS3 struct {
	puts      []*s3.PutObjectInput
	bodies    [][]byte
	putErr    error
	headErr   error
	createErr error
	created   int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created++
	return &s3.CreateBucketOutput{}, f.createErr
}

func TestReportKey(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc", generatedAt, "reports/2025/03/01/report-1740830400.json"},
		{"offset converted to utc", time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600)), "reports/2025/03/02/report-1740879000.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportKey(tt.in))
		})
	}
}

func TestArchiver_S3(t *testing.T) {
	fake := &fakeS3{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	a := New(&S3Backend{client: fake, bucket: "reports"}, WithMetrics(metrics))

	key, err := a.Archive(context.Background(), testReport())
	require.NoError(t, err)
	assert.Equal(t, "reports/2025/03/01/report-1740830400.json", key)

	require.Len(t, fake.puts, 1)
	in := fake.puts[0]
	assert.Equal(t, "reports", aws.ToString(in.Bucket))
	assert.Equal(t, key, aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Equal(t, Checksum(fake.bodies[0]), in.Metadata["checksum-sha256"])
	assert.Equal(t, "1", in.Metadata["event-count"])

	var decoded analytics.Report
	require.NoError(t, json.Unmarshal(fake.bodies[0], &decoded))
	assert.Equal(t, 1, decoded.Overall.TotalSessions)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveUploadsTotal.WithLabelValues("success")))
}

func TestArchiver_S3Failure(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("access denied")}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	a := New(&S3Backend{client: fake, bucket: "reports"}, WithMetrics(metrics))

	_, err := a.Archive(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveUploadsTotal.WithLabelValues("error")))
}

func TestArchiver_NilReport(t *testing.T) {
	a := New(&S3Backend{client: &fakeS3{}, bucket: "reports"})
	_, err := a.Archive(context.Background(), nil)
	assert.Error(t, err)
}

func TestS3Backend_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		fake := &fakeS3{}
		require.NoError(t, (&S3Backend{client: fake, bucket: "b"}).ensureBucket(ctx))
		assert.Equal(t, 0, fake.created)
	})

	t.Run("created", func(t *testing.T) {
		fake := &fakeS3{headErr: errors.New("not found")}
		require.NoError(t, (&S3Backend{client: fake, bucket: "b"}).ensureBucket(ctx))
		assert.Equal(t, 1, fake.created)
	})

	t.Run("lost race", func(t *testing.T) {
		fake := &fakeS3{headErr: errors.New("not found"), createErr: &types.BucketAlreadyOwnedByYou{}}
		assert.NoError(t, (&S3Backend{client: fake, bucket: "b"}).ensureBucket(ctx))
	})

	t.Run("create failed", func(t *testing.T) {
		fake := &fakeS3{headErr: errors.New("not found"), createErr: errors.New("forbidden")}
		assert.Error(t, (&S3Backend{client: fake, bucket: "b"}).ensureBucket(ctx))
	})
}

func TestNewS3Backend_RequiresBucket(t *testing.T) {
	_, err := NewS3Backend(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestArchiver_FileBackend(t *testing.T) {
	root := t.TempDir()
	backend, err := NewFileBackend(root)
	require.NoError(t, err)

	key, err := New(backend).Archive(context.Background(), testReport())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)

	metaBytes, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)) + ".meta.json")
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(metaBytes, &meta))
	assert.Equal(t, Checksum(data), meta["checksum-sha256"])
}

func TestFileBackend_CancelledContext(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, backend.Put(ctx, "k.json", []byte("{}"), contentTypeJSON, nil), context.Canceled)
}
