package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUploader(upload uploadFunc) (*Uploader, *[]time.Duration) {
	var slept []time.Duration
	u := &Uploader{
		upload: upload,
		sleep:  func(d time.Duration) { slept = append(slept, d) },
	}
	return u, &slept
}

func TestUploadSuccess(t *testing.T) {
	var gotParams uploader.UploadParams
	u, slept := testUploader(func(_ context.Context, _ io.Reader, params uploader.UploadParams) (string, error) {
		gotParams = params
		return "https://res.cloudinary.example/avatar.jpg", nil
	})

	url, err := u.Upload(context.Background(), bytes.NewReader([]byte("img")), KindAvatar, "user1_123")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.example/avatar.jpg", url)
	assert.Equal(t, "ripple/avatars", gotParams.Folder)
	assert.Equal(t, "user1_123", gotParams.PublicID)
	assert.Empty(t, *slept)
}

func TestUploadRetriesWithBackoff(t *testing.T) {
	attempts := 0
	u, slept := testUploader(func(_ context.Context, _ io.Reader, _ uploader.UploadParams) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("temporarily unavailable")
		}
		return "https://res.cloudinary.example/ok.jpg", nil
	})

	url, err := u.Upload(context.Background(), bytes.NewReader([]byte("img")), KindPhoto, "p1")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.example/ok.jpg", url)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestUploadExhaustsAttempts(t *testing.T) {
	attempts := 0
	cause := errors.New("service down")
	u, _ := testUploader(func(_ context.Context, _ io.Reader, _ uploader.UploadParams) (string, error) {
		attempts++
		return "", cause
	})

	_, err := u.Upload(context.Background(), bytes.NewReader([]byte("img")), KindStory, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, attempts)
}

func TestUploadRewindsBodyBetweenAttempts(t *testing.T) {
	var seen []string
	attempts := 0
	u, _ := testUploader(func(_ context.Context, file io.Reader, _ uploader.UploadParams) (string, error) {
		data, _ := io.ReadAll(file)
		seen = append(seen, string(data))
		attempts++
		if attempts == 1 {
			return "", errors.New("flake")
		}
		return "url", nil
	})

	_, err := u.Upload(context.Background(), bytes.NewReader([]byte("payload")), KindPhoto, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "payload"}, seen, "body is rewound before each retry")
}

func TestUploadNonSeekableBodyFailsFast(t *testing.T) {
	attempts := 0
	u, slept := testUploader(func(_ context.Context, _ io.Reader, _ uploader.UploadParams) (string, error) {
		attempts++
		return "", errors.New("flake")
	})

	// An io.Reader stream cannot be replayed, so the first failure is final.
	body := io.MultiReader(bytes.NewReader([]byte("img")))
	_, err := u.Upload(context.Background(), body, KindPhoto, "p1")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *slept)
}

func TestParamsForKinds(t *testing.T) {
	assert.Equal(t, "ripple/avatars", paramsFor(KindAvatar, "x").Folder)
	assert.Equal(t, "ripple/stories", paramsFor(KindStory, "x").Folder)
	assert.Equal(t, "ripple/photos", paramsFor(KindPhoto, "x").Folder)
	assert.Equal(t, "ripple/photos", paramsFor("unknown", "x").Folder)
}
