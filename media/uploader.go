// Package media uploads user assets to Cloudinary.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Asset kinds determine folder and transformation.
const (
	KindAvatar = "avatar"
	KindPhoto  = "photo"
	KindStory  = "story"
)

const (
	maxAttempts   = 3
	retryBaseWait = time.Second
)

type uploadFunc func(ctx context.Context, file io.Reader, params uploader.UploadParams) (string, error)

type Uploader struct {
	upload uploadFunc
	sleep  func(time.Duration)
}

// New builds an Uploader from a CLOUDINARY_URL style connection string.
func New(cloudinaryURL string) (*Uploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("configure cloudinary: %w", err)
	}
	return &Uploader{
		upload: func(ctx context.Context, file io.Reader, params uploader.UploadParams) (string, error) {
			result, err := cld.Upload.Upload(ctx, file, params)
			if err != nil {
				return "", err
			}
			return result.SecureURL, nil
		},
		sleep: time.Sleep,
	}, nil
}

func paramsFor(kind, publicID string) uploader.UploadParams {
	switch kind {
	case KindAvatar:
		return uploader.UploadParams{
			Folder:         "ripple/avatars",
			PublicID:       publicID,
			Transformation: "c_limit,w_400,h_400,q_auto",
		}
	case KindStory:
		return uploader.UploadParams{
			Folder:         "ripple/stories",
			PublicID:       publicID,
			Transformation: "c_limit,w_1080,h_1920,q_auto",
		}
	default:
		return uploader.UploadParams{
			Folder:         "ripple/photos",
			PublicID:       publicID,
			Transformation: "c_limit,w_800,h_800,q_auto",
		}
	}
}

// Upload sends the file to Cloudinary and returns the hosted secure URL.
// Transient failures are retried with exponential backoff (1s, 2s, 4s).
func (u *Uploader) Upload(ctx context.Context, file io.Reader, kind, publicID string) (string, error) {
	params := paramsFor(kind, publicID)

	var lastErr error
	wait := retryBaseWait
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		url, err := u.upload(ctx, file, params)
		if err == nil {
			return url, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			if seeker, ok := file.(io.Seeker); ok {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return "", fmt.Errorf("rewind upload body: %w", err)
				}
			} else {
				// Body already consumed, retrying would upload nothing.
				break
			}
			u.sleep(wait)
			wait *= 2
		}
	}
	return "", fmt.Errorf("upload: %w", lastErr)
}
