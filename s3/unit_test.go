package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/datasource"
)

// MockS3Client mocks the Client interface.
type MockS3Client struct {
	mock.Mock
}

var _ Client = (*MockS3Client)(nil)

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

// expectObject registers one spool round: a HeadObject for size and, for
// non-empty data, the single ranged GetObject the downloader issues.
func expectObject(m *MockS3Client, bucket, key string, data []byte) {
	m.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Bucket) == bucket && aws.ToString(in.Key) == key
	})).Return(&s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil).Once()

	if len(data) == 0 {
		return
	}

	m.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == bucket && aws.ToString(in.Key) == key
	})).Return(&s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data))),
	}, nil).Once()
}

func newTestSource(t *testing.T, client Client, mutable bool, optFns ...Option) *Source {
	t.Helper()

	src, err := New(context.Background(), "test-bucket", "data/blob", mutable, append([]Option{WithClient(client)}, optFns...)...)
	require.NoError(t, err)
	return src
}

func TestSource_ReadObject(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", []byte("hello world"))

	src := newTestSource(t, mockClient, false)

	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)

	data, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// Content is spooled at open; seeks and re-reads stay local.
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	again, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(again))

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), datasource.ErrClosed)

	mockClient.AssertExpectations(t)
}

func TestSource_NotFound(t *testing.T) {
	mockClient := new(MockS3Client)
	mockClient.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Twice()

	src := newTestSource(t, mockClient, true)

	_, err := src.OpenBytes(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, datasource.ErrNotFound)
	assert.Equal(t, datasource.KindStorage, datasource.KindOf(err))

	// Writable opens never create missing objects.
	_, err = src.OpenBytes(context.Background(), true)
	assert.ErrorIs(t, err, datasource.ErrNotFound)

	mockClient.AssertExpectations(t)
}

func TestSource_NoSuchKeyDuringDownload(t *testing.T) {
	mockClient := new(MockS3Client)
	mockClient.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{
		ContentLength: aws.Int64(3),
	}, nil).Once()
	mockClient.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{}).Once()

	src := newTestSource(t, mockClient, false)

	_, err := src.OpenBytes(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, datasource.ErrNotFound)

	mockClient.AssertExpectations(t)
}

func TestSource_Immutable(t *testing.T) {
	mockClient := new(MockS3Client)
	src := newTestSource(t, mockClient, false)

	_, err := src.OpenBytes(context.Background(), true)
	assert.ErrorIs(t, err, datasource.ErrImmutable)

	_, err = src.OpenText(context.Background(), true)
	assert.ErrorIs(t, err, datasource.ErrImmutable)

	// Immutability is decided before any request is made.
	mockClient.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything)
}

func TestSource_OverwriteOnClose(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", []byte("foonani"))

	var uploaded []byte
	var checksum *string
	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "test-bucket" && aws.ToString(in.Key) == "data/blob"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		uploaded, _ = io.ReadAll(in.Body)
		checksum = in.ChecksumCRC32C
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	src := newTestSource(t, mockClient, true)

	h, err := src.OpenBytes(context.Background(), true)
	require.NoError(t, err)

	n, err := h.Write([]byte("dar"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Nothing reaches the bucket until Close commits.
	mockClient.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)

	require.NoError(t, h.Close())
	assert.Equal(t, "darnani", string(uploaded))
	require.NotNil(t, checksum)
	assert.Equal(t, computeCRC32C([]byte("darnani")), *checksum)

	// Commits are one-shot.
	assert.ErrorIs(t, h.Close(), datasource.ErrClosed)

	mockClient.AssertExpectations(t)
}

func TestSource_CommitIgnoresPosition(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", []byte("foonani"))

	var uploaded []byte
	mockClient.On("PutObject", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		uploaded, _ = io.ReadAll(in.Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	src := newTestSource(t, mockClient, true)

	h, err := src.OpenBytes(context.Background(), true)
	require.NoError(t, err)

	_, err = h.Write([]byte("dar"))
	require.NoError(t, err)
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.Equal(t, "darnani", string(uploaded))

	mockClient.AssertExpectations(t)
}

func TestSource_UploadFailure(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", []byte("stable"))
	mockClient.On("PutObject", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("throttled")).Once()

	src := newTestSource(t, mockClient, true)

	h, err := src.OpenBytes(context.Background(), true)
	require.NoError(t, err)
	_, err = h.Write([]byte("new"))
	require.NoError(t, err)

	err = h.Close()
	require.Error(t, err)
	assert.Equal(t, datasource.KindStorage, datasource.KindOf(err))

	var storeErr *datasource.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "s3", storeErr.Backend)

	// The failed commit still closed the handle.
	assert.ErrorIs(t, h.Close(), datasource.ErrClosed)

	mockClient.AssertExpectations(t)
}

func TestSource_EmptyObject(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", nil)

	src := newTestSource(t, mockClient, false)

	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	data, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Empty(t, data)

	// Empty objects skip the download entirely.
	mockClient.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
}

func TestSource_TextForcedEncoding(t *testing.T) {
	latin1 := []byte{0x68, 0xe9, 0x6c, 0x6c, 0x6f} // "héllo" in ISO-8859-1

	t.Run("Read", func(t *testing.T) {
		mockClient := new(MockS3Client)
		expectObject(mockClient, "test-bucket", "data/blob", latin1)

		src := newTestSource(t, mockClient, false, WithEncoding("latin1"))

		h, err := src.OpenText(context.Background(), false)
		require.NoError(t, err)
		defer h.Close()

		text, err := io.ReadAll(h)
		require.NoError(t, err)
		assert.Equal(t, "héllo", string(text))
	})

	t.Run("Commit", func(t *testing.T) {
		mockClient := new(MockS3Client)
		expectObject(mockClient, "test-bucket", "data/blob", latin1)

		var uploaded []byte
		mockClient.On("PutObject", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			in := args.Get(1).(*s3.PutObjectInput)
			uploaded, _ = io.ReadAll(in.Body)
		}).Return(&s3.PutObjectOutput{}, nil).Once()

		src := newTestSource(t, mockClient, true, WithEncoding("latin1"))

		h, err := src.OpenText(context.Background(), true)
		require.NoError(t, err)
		_, err = h.WriteString("grüße")
		require.NoError(t, err)
		require.NoError(t, h.Close())

		// Stored bytes are the ISO-8859-1 form, not UTF-8.
		assert.Equal(t, []byte{0x67, 0x72, 0xfc, 0xdf, 0x65}, uploaded)
	})
}

func TestSource_TextRejectsInvalidUTF8(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0xfd}

	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", raw)

	src := newTestSource(t, mockClient, false)

	_, err := src.OpenText(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, datasource.KindEncoding, datasource.KindOf(err))

	// The bytes view of the same content stays available.
	expectObject(mockClient, "test-bucket", "data/blob", raw)
	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	data, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestSource_TextCommitRequiresUTF8(t *testing.T) {
	mockClient := new(MockS3Client)
	expectObject(mockClient, "test-bucket", "data/blob", []byte("clean"))

	src := newTestSource(t, mockClient, true)

	h, err := src.OpenText(context.Background(), true)
	require.NoError(t, err)

	_, err = h.Write([]byte{0xff, 0xfe})
	require.NoError(t, err)

	err = h.Close()
	require.Error(t, err)
	assert.Equal(t, datasource.KindEncoding, datasource.KindOf(err))

	// The invalid content never left the buffer.
	mockClient.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestSource_UnknownEncoding(t *testing.T) {
	mockClient := new(MockS3Client)
	src := newTestSource(t, mockClient, false, WithEncoding("not-a-charset"))

	_, err := src.OpenText(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-charset")

	// Encoding resolution fails before any request is made.
	mockClient.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything)
}

func TestSource_DeclaredErrors(t *testing.T) {
	mockClient := new(MockS3Client)
	mockClient.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil)

	src := newTestSource(t, mockClient, true)

	expectObject(mockClient, "test-bucket", "data/blob", []byte("x"))
	ro, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer ro.Close()
	assert.Equal(t, readOnlyErrors, ro.Errors())
	assert.False(t, ro.Errors().Has(datasource.KindStorage))

	expectObject(mockClient, "test-bucket", "data/blob", []byte("x"))
	rw, err := src.OpenBytes(context.Background(), true)
	require.NoError(t, err)
	defer rw.Close()
	assert.Equal(t, writableErrors, rw.Errors())

	expectObject(mockClient, "test-bucket", "data/blob", []byte("x"))
	rwText, err := src.OpenText(context.Background(), true)
	require.NoError(t, err)
	defer rwText.Close()
	assert.Equal(t, textWritableErrors, rwText.Errors())
	assert.True(t, rwText.Errors().Has(datasource.KindEncoding))
}

func TestSource_URI(t *testing.T) {
	mockClient := new(MockS3Client)
	src := newTestSource(t, mockClient, true)

	assert.Equal(t, "s3://test-bucket/data/blob", src.URI())
	assert.Equal(t, "test-bucket", src.Bucket())
	assert.Equal(t, "data/blob", src.Key())
	assert.True(t, src.Mutable())

	_, ok := src.Path()
	assert.False(t, ok)
}

func TestComputeCRC32C(t *testing.T) {
	// Known CRC32C vector: 0xE3069283 big-endian, base64 encoded.
	assert.Equal(t, "4waSgw==", computeCRC32C([]byte("123456789")))
}
