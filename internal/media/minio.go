// Package media stocke les images produit dans MinIO et en délivre des URL signées.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/nfnt/resize"
)

const maxImageWidth = 800

type MinIO struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewMinIO(client *minio.Client, bucket string, ttl time.Duration) *MinIO {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MinIO{client: client, bucket: bucket, ttl: ttl}
}

// ImageURL génère une URL de lecture signée, valable ttl.
func (m *MinIO) ImageURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.ttl, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PutImage redimensionne l'image (PNG ou JPEG) à 800 px de large au plus, puis la stocke en JPEG.
func (m *MinIO) PutImage(ctx context.Context, productID, filename string, r io.Reader) (string, error) {
	data, err := NormalizeImage(filename, r)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("products/%s_%d.jpg", productID, time.Now().Unix())
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("upload MinIO: %w", err)
	}
	return key, nil
}

// ErrUnsupportedImage signale un format autre que PNG ou JPEG.
var ErrUnsupportedImage = fmt.Errorf("format d'image non supporté (png, jpg, jpeg)")

func NormalizeImage(filename string, r io.Reader) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		img, err = png.Decode(r)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(r)
	default:
		return nil, ErrUnsupportedImage
	}
	if err != nil {
		return nil, fmt.Errorf("image illisible: %w", err)
	}

	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
