package s3blob_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/pkg/blob/s3blob"
	"github.com/anggasct/inspectflow/pkg/store/memory"
)

type fakeS3 struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.contentTypes[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := s3blob.New(fake, "signatures-bucket")

	ref, err := s.Put(ctx, "signatures/sub-1/supervisor/a", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://signatures-bucket/signatures/sub-1/supervisor/a", ref)
	assert.Equal(t, "image/png", fake.contentTypes["signatures-bucket/signatures/sub-1/supervisor/a"])

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = s.Get(ctx, "s3://signatures-bucket/missing")
	assert.Error(t, err)

	_, err = s.PresignGet(ctx, ref, 0)
	assert.Error(t, err)
}

func TestParseRef(t *testing.T) {
	bucket, key, err := s3blob.ParseRef("s3://b/k/with/slashes")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "k/with/slashes", key)

	for _, bad := range []string{"mem://x", "s3://bucket-only", "s3:///key"} {
		_, _, err := s3blob.ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestStore_EngineUploadsSignatures(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	engine, err := inspectflow.NewBuilder().
		Store(memory.New()).
		Blobs(s3blob.New(fake, "sigs")).
		Build()
	require.NoError(t, err)

	sub, err := engine.Create(ctx, inspectflow.TestSupervisor, inspectflow.CreateInput{SignatureData: []byte("ink"), ContentType: "image/svg+xml"})
	require.NoError(t, err)

	bucket, key, err := s3blob.ParseRef(sub.Supervisor.Signature)
	require.NoError(t, err)
	assert.Equal(t, "sigs", bucket)
	assert.Equal(t, "image/svg+xml", fake.contentTypes[bucket+"/"+key])
}
